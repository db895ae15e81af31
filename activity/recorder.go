// Package activity records user audit entries off the request path. Appends
// are best effort: a full queue or a failing store never reaches the caller.
package activity

import (
	"context"
	"time"

	"agora/metrics"
	"agora/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

type Store interface {
	AppendActivity(ctx context.Context, userID primitive.ObjectID, entry models.ActivityEntry) error
}

type job struct {
	userID primitive.ObjectID
	entry  models.ActivityEntry
}

type Recorder struct {
	store  Store
	logger *zap.Logger
	queue  chan job

	done chan struct{}
}

func NewRecorder(store Store, logger *zap.Logger, size int) *Recorder {
	if size <= 0 {
		size = 1
	}
	return &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan job, size),
		done:   make(chan struct{}),
	}
}

// Record enqueues an entry and returns immediately. When the queue is full
// the entry is dropped.
func (r *Recorder) Record(userID primitive.ObjectID, action string, details map[string]interface{}) {
	j := job{
		userID: userID,
		entry: models.ActivityEntry{
			Action:    action,
			Details:   details,
			Timestamp: time.Now(),
		},
	}
	select {
	case r.queue <- j:
	default:
		metrics.ActivityTotal.WithLabelValues("dropped").Inc()
		r.logger.Warn("activity queue full, entry dropped",
			zap.String("userId", userID.Hex()),
			zap.String("action", action),
		)
	}
}

// Run writes queued entries until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case j := <-r.queue:
			r.write(j)
		case <-ctx.Done():
			for {
				select {
				case j := <-r.queue:
					r.write(j)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (r *Recorder) Wait() {
	<-r.done
}

func (r *Recorder) write(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.AppendActivity(ctx, j.userID, j.entry); err != nil {
		metrics.ActivityTotal.WithLabelValues("failed").Inc()
		r.logger.Sugar().Errorf("failed to append activity %s for user(%s): %s", j.entry.Action, j.userID.Hex(), err.Error())
		return
	}
	metrics.ActivityTotal.WithLabelValues("written").Inc()
}
