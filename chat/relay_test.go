package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"agora/models"
	"agora/repository"
	"agora/repository/memory"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	relay  *Relay
	hub    *Hub
	store  *memory.MessageStore
	cancel context.CancelFunc
}

func newHarness(t *testing.T, historyLimit int) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewMessageStore()
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return &harness{
		relay:  NewRelay(store, hub, NewLocalBus(hub), historyLimit, logger),
		hub:    hub,
		store:  store,
		cancel: cancel,
	}
}

func recv(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data, ok := <-c.Send():
		if !ok {
			t.Fatalf("client %s was closed", c.ID)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s: timed out waiting for event", c.ID)
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send():
		t.Fatalf("client %s: unexpected event %s", c.ID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func decodeMessages(t *testing.T, ev Event) []models.Message {
	t.Helper()
	var msgs []models.Message
	if err := json.Unmarshal(ev.Payload, &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	return msgs
}

func decodeMessage(t *testing.T, ev Event) models.Message {
	t.Helper()
	var msg models.Message
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func TestJoinReplaysMostRecentHistory(t *testing.T) {
	h := newHarness(t, 20)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 50; i++ {
		msg := &models.Message{User: "u", Text: fmt.Sprintf("m%02d", i), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if _, err := h.store.Insert(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	c := NewClient("c1", 8)
	if err := h.relay.Join(ctx, c); err != nil {
		t.Fatalf("join: %v", err)
	}
	ev := recv(t, c)
	if ev.Type != EventMessageHistory {
		t.Fatalf("first event = %s, want %s", ev.Type, EventMessageHistory)
	}
	msgs := decodeMessages(t, ev)
	if len(msgs) != 20 {
		t.Fatalf("history has %d messages, want 20", len(msgs))
	}
	for i, m := range msgs {
		if want := fmt.Sprintf("m%02d", 30+i); m.Text != want {
			t.Fatalf("history[%d] = %s, want %s", i, m.Text, want)
		}
	}

	if _, err := h.relay.Send(ctx, SendMessage{UserName: "ann", Text: "live"}); err != nil {
		t.Fatal(err)
	}
	ev = recv(t, c)
	if ev.Type != EventReceiveMessage || decodeMessage(t, ev).Text != "live" {
		t.Fatalf("second event = %s %s", ev.Type, ev.Payload)
	}
}

func TestEmptyHistoryIsAnArray(t *testing.T) {
	h := newHarness(t, 0)
	c := NewClient("c1", 4)
	if err := h.relay.Join(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	ev := recv(t, c)
	if string(ev.Payload) != "[]" {
		t.Fatalf("payload = %s, want []", ev.Payload)
	}
}

func TestBroadcastReachesEveryClientInOrder(t *testing.T) {
	h := newHarness(t, 50)
	ctx := context.Background()
	clients := []*Client{NewClient("a", 16), NewClient("b", 16), NewClient("c", 16)}
	for _, c := range clients {
		if err := h.relay.Join(ctx, c); err != nil {
			t.Fatal(err)
		}
		recv(t, c)
	}

	for i := 0; i < 5; i++ {
		if _, err := h.relay.Send(ctx, SendMessage{UserName: "a", Text: fmt.Sprintf("t%d", i), AvatarColor: "#fff"}); err != nil {
			t.Fatal(err)
		}
	}
	for _, c := range clients {
		for i := 0; i < 5; i++ {
			msg := decodeMessage(t, recv(t, c))
			if want := fmt.Sprintf("t%d", i); msg.Text != want {
				t.Fatalf("client %s got %s, want %s", c.ID, msg.Text, want)
			}
			if msg.User != "a" || msg.AvatarColor != "#fff" || msg.ID.IsZero() {
				t.Fatalf("client %s got %+v", c.ID, msg)
			}
		}
	}
}

func TestHandleSendMessageFrame(t *testing.T) {
	h := newHarness(t, 50)
	ctx := context.Background()
	c := NewClient("a", 4)
	if err := h.relay.Join(ctx, c); err != nil {
		t.Fatal(err)
	}
	recv(t, c)

	h.relay.Handle(ctx, c, []byte(`{"type":"sendMessage","payload":{"userName":"ann","text":"hi","avatarColor":"red"}}`))
	msg := decodeMessage(t, recv(t, c))
	if msg.User != "ann" || msg.Text != "hi" || msg.AvatarColor != "red" {
		t.Fatalf("message = %+v", msg)
	}

	h.relay.Handle(ctx, c, []byte(`{"type":"typing"}`))
	h.relay.Handle(ctx, c, []byte(`not json`))
	h.relay.Handle(ctx, c, []byte(`{"type":"sendMessage","payload":{"userName":"ann","text":"   "}}`))
	expectNothing(t, c)
	if n := h.store.Attempts(); n != 1 {
		t.Fatalf("insert attempts = %d, want 1", n)
	}
}

func TestSendRetriesDuplicateKeyOnce(t *testing.T) {
	h := newHarness(t, 50)
	ctx := context.Background()
	c := NewClient("a", 4)
	if err := h.relay.Join(ctx, c); err != nil {
		t.Fatal(err)
	}
	recv(t, c)

	h.store.FailNext(repository.ErrDuplicateKey)
	msg, err := h.relay.Send(ctx, SendMessage{UserName: "ann", Text: "again"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if h.store.Attempts() != 2 {
		t.Fatalf("attempts = %d, want 2", h.store.Attempts())
	}
	got := decodeMessage(t, recv(t, c))
	if got.ID != msg.ID || got.Text != "again" {
		t.Fatalf("broadcast = %+v, want id %s", got, msg.ID.Hex())
	}
}

func TestSendDropsAfterSecondDuplicate(t *testing.T) {
	h := newHarness(t, 50)
	ctx := context.Background()
	c := NewClient("a", 4)
	if err := h.relay.Join(ctx, c); err != nil {
		t.Fatal(err)
	}
	recv(t, c)

	h.store.FailNext(repository.ErrDuplicateKey, repository.ErrDuplicateKey)
	_, err := h.relay.Send(ctx, SendMessage{UserName: "ann", Text: "lost"})
	if !errors.Is(err, repository.ErrDuplicateKey) {
		t.Fatalf("got %v, want ErrDuplicateKey", err)
	}
	if h.store.Attempts() != 2 {
		t.Fatalf("attempts = %d, want 2", h.store.Attempts())
	}
	expectNothing(t, c)

	msgs, err := h.relay.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("stored %d messages, want 0", len(msgs))
	}
}

func TestSendDoesNotRetryOtherErrors(t *testing.T) {
	h := newHarness(t, 50)
	h.store.FailNext(errors.New("connection reset"))
	if _, err := h.relay.Send(context.Background(), SendMessage{UserName: "ann", Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if h.store.Attempts() != 1 {
		t.Fatalf("attempts = %d, want 1", h.store.Attempts())
	}
}

func TestSendValidates(t *testing.T) {
	h := newHarness(t, 50)
	cases := []SendMessage{
		{Text: "no name"},
		{UserName: "ann"},
		{UserName: "ann", Text: string(make([]byte, 2001))},
	}
	for i, in := range cases {
		if _, err := h.relay.Send(context.Background(), in); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("case %d: got %v, want ErrInvalidMessage", i, err)
		}
	}
	if h.store.Attempts() != 0 {
		t.Fatalf("attempts = %d, want 0", h.store.Attempts())
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	h := newHarness(t, 50)
	ctx := context.Background()
	stay, gone := NewClient("stay", 4), NewClient("gone", 4)
	for _, c := range []*Client{stay, gone} {
		if err := h.relay.Join(ctx, c); err != nil {
			t.Fatal(err)
		}
		recv(t, c)
	}
	h.relay.Leave(gone)
	if _, ok := <-gone.Send(); ok {
		t.Fatal("left client channel should be closed")
	}

	if _, err := h.relay.Send(ctx, SendMessage{UserName: "a", Text: "b"}); err != nil {
		t.Fatal(err)
	}
	recv(t, stay)
	if h.relay.Clients() != 1 {
		t.Fatalf("clients = %d, want 1", h.relay.Clients())
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h := newHarness(t, 50)
	ctx := context.Background()
	slow, fast := NewClient("slow", 1), NewClient("fast", 8)
	for _, c := range []*Client{slow, fast} {
		if err := h.relay.Join(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	recv(t, fast)

	// slow still holds its history frame, so the first broadcast overflows it.
	for i := 0; i < 2; i++ {
		if _, err := h.relay.Send(ctx, SendMessage{UserName: "a", Text: fmt.Sprintf("%d", i)}); err != nil {
			t.Fatal(err)
		}
	}
	recv(t, fast)
	recv(t, fast)

	if ev := recv(t, slow); ev.Type != EventMessageHistory {
		t.Fatalf("slow client first event = %s", ev.Type)
	}
	if _, ok := <-slow.Send(); ok {
		t.Fatal("slow client should have been dropped")
	}
	if h.relay.Clients() != 1 {
		t.Fatalf("clients = %d, want 1", h.relay.Clients())
	}
}

func TestJoinAfterShutdown(t *testing.T) {
	h := newHarness(t, 50)
	h.cancel()
	<-h.hub.done
	if err := h.relay.Join(context.Background(), NewClient("late", 2)); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("got %v, want ErrHubClosed", err)
	}
}

func TestReplayedMessagesAreNotDeliveredTwice(t *testing.T) {
	h := newHarness(t, 50)
	ctx := context.Background()
	msg := &models.Message{User: "u", Text: "early"}
	if _, err := h.store.Insert(ctx, msg); err != nil {
		t.Fatal(err)
	}

	c := NewClient("c", 4)
	if err := h.relay.Join(ctx, c); err != nil {
		t.Fatal(err)
	}
	recv(t, c)

	// A bus that delivers after the history snapshot, as Redis may.
	if err := deliver(h.hub, *msg); err != nil {
		t.Fatal(err)
	}
	expectNothing(t, c)
}

// gatedStore stores the message, then holds Insert open until released.
type gatedStore struct {
	*memory.MessageStore
	inserted chan struct{}
	release  chan struct{}
}

func (s *gatedStore) Insert(ctx context.Context, msg *models.Message) (primitive.ObjectID, error) {
	id, err := s.MessageStore.Insert(ctx, msg)
	close(s.inserted)
	<-s.release
	return id, err
}

func TestJoinDuringSlowInsert(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := &gatedStore{
		MessageStore: memory.NewMessageStore(),
		inserted:     make(chan struct{}),
		release:      make(chan struct{}),
	}
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	relay := NewRelay(store, hub, NewLocalBus(hub), 10, logger)

	early := NewClient("early", 8)
	if err := relay.Join(ctx, early); err != nil {
		t.Fatal(err)
	}
	recv(t, early)

	sent := make(chan error, 1)
	go func() {
		_, err := relay.Send(ctx, SendMessage{UserName: "ana", Text: "slow"})
		sent <- err
	}()
	<-store.inserted

	late := NewClient("late", 8)
	joined := make(chan error, 1)
	go func() { joined <- relay.Join(ctx, late) }()
	select {
	case err := <-joined:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join waited on an in-flight insert")
	}

	history := decodeMessages(t, recv(t, late))
	if len(history) != 1 || history[0].Text != "slow" {
		t.Fatalf("history = %+v, want the inserted message", history)
	}

	close(store.release)
	if err := <-sent; err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := decodeMessage(t, recv(t, early)).Text; got != "slow" {
		t.Fatalf("early client got %q", got)
	}
	expectNothing(t, late)
}
