package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReactionsTotal counts reaction operations by action and outcome.
	ReactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_reactions_total",
		Help: "Reaction operations by action and outcome",
	}, []string{"action", "outcome"})

	// NormalizedPostsTotal counts legacy posts rewritten to canonical shape.
	NormalizedPostsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_normalized_posts_total",
		Help: "Posts whose reaction fields were rewritten to canonical shape",
	})

	FavoritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_favorites_total",
		Help: "Favorites operations by action",
	}, []string{"action"})

	ChatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_chat_messages_total",
		Help: "Chat messages by outcome (persisted, retried, dropped, rejected)",
	}, []string{"outcome"})

	ChatClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agora_chat_clients",
		Help: "Currently connected chat clients",
	})

	ChatSlowClientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_chat_slow_clients_total",
		Help: "Chat clients disconnected because their send buffer was full",
	})

	ActivityTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_activity_entries_total",
		Help: "Activity log entries by outcome (written, failed, dropped)",
	}, []string{"outcome"})
)
