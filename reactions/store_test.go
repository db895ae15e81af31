package reactions

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"agora/activity"
	"agora/models"
	"agora/repository/memory"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

type entry struct {
	userID  primitive.ObjectID
	action  string
	details map[string]interface{}
}

type sink struct {
	mu      sync.Mutex
	entries []entry
}

func (s *sink) Record(userID primitive.ObjectID, action string, details map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{userID, action, details})
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.action
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *memory.PostStore, *sink) {
	t.Helper()
	posts := memory.NewPostStore()
	audit := &sink{}
	return NewStore(posts, audit, zaptest.NewLogger(t)), posts, audit
}

func putPost(t *testing.T, posts *memory.PostStore, title string) primitive.ObjectID {
	t.Helper()
	id, err := posts.Put(models.Post{
		Title:    title,
		Likes:    models.EmptyReactionSet(),
		Dislikes: models.EmptyReactionSet(),
	})
	if err != nil {
		t.Fatalf("put post: %v", err)
	}
	return id
}

func wantCounts(t *testing.T, got models.Counts, likes, dislikes int64) {
	t.Helper()
	if got.Likes != likes || got.Dislikes != dislikes {
		t.Fatalf("counts = %+v, want likes=%d dislikes=%d", got, likes, dislikes)
	}
}

func TestLikeDislikeRemoveScenario(t *testing.T) {
	store, posts, audit := newTestStore(t)
	ctx := context.Background()
	postID := putPost(t, posts, "Hello")
	u := primitive.NewObjectID()

	counts, err := store.Like(ctx, postID, u)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	wantCounts(t, counts, 1, 0)

	if _, err := store.Like(ctx, postID, u); !errors.Is(err, ErrAlreadyLiked) {
		t.Fatalf("second like: got %v, want ErrAlreadyLiked", err)
	}

	counts, err = store.Dislike(ctx, postID, u)
	if err != nil {
		t.Fatalf("dislike: %v", err)
	}
	wantCounts(t, counts, 0, 1)

	if _, err := store.Dislike(ctx, postID, u); !errors.Is(err, ErrAlreadyDisliked) {
		t.Fatalf("second dislike: got %v, want ErrAlreadyDisliked", err)
	}

	counts, err = store.RemoveReaction(ctx, postID, u)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	wantCounts(t, counts, 0, 0)

	if _, err := store.RemoveReaction(ctx, postID, u); !errors.Is(err, ErrNoReaction) {
		t.Fatalf("second remove: got %v, want ErrNoReaction", err)
	}

	reaction, counts, err := store.CurrentReaction(ctx, postID, u)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if reaction != models.ReactionNone {
		t.Fatalf("reaction = %s, want none", reaction)
	}
	wantCounts(t, counts, 0, 0)

	want := []string{"post_liked", "post_disliked", "post_dislike_removed"}
	got := audit.actions()
	if len(got) != len(want) {
		t.Fatalf("audit = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit = %v, want %v", got, want)
		}
	}
	if title := audit.entries[0].details["title"]; title != "Hello" {
		t.Fatalf("audit title = %v, want Hello", title)
	}
}

func TestRemoveLikeAudit(t *testing.T) {
	store, posts, audit := newTestStore(t)
	ctx := context.Background()
	postID := putPost(t, posts, "")
	u := primitive.NewObjectID()

	if _, err := store.Like(ctx, postID, u); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RemoveReaction(ctx, postID, u); err != nil {
		t.Fatal(err)
	}
	got := audit.actions()
	if len(got) != 2 || got[1] != "post_like_removed" {
		t.Fatalf("audit = %v", got)
	}
	if title := audit.entries[0].details["title"]; title != untitled {
		t.Fatalf("audit title = %v, want %q", title, untitled)
	}
}

func TestUnknownPost(t *testing.T) {
	store, _, audit := newTestStore(t)
	ctx := context.Background()
	missing := primitive.NewObjectID()
	u := primitive.NewObjectID()

	if _, err := store.Like(ctx, missing, u); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("like: got %v", err)
	}
	if _, err := store.Dislike(ctx, missing, u); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("dislike: got %v", err)
	}
	if _, err := store.RemoveReaction(ctx, missing, u); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("remove: got %v", err)
	}
	if _, _, err := store.CurrentReaction(ctx, missing, u); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("current: got %v", err)
	}
	if n := len(audit.actions()); n != 0 {
		t.Fatalf("expected no audit entries, got %d", n)
	}
}

func TestLegacyPostIsNormalizedOnce(t *testing.T) {
	store, posts, _ := newTestStore(t)
	ctx := context.Background()
	legacy := ids(3)
	postID := primitive.NewObjectID()
	posts.PutRaw(models.RawPost{
		ID:    postID,
		Title: "old",
		Likes: rawValue(t, legacy),
	})

	reaction, counts, err := store.CurrentReaction(ctx, postID, legacy[1])
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if reaction != models.ReactionLike {
		t.Fatalf("reaction = %s, want like", reaction)
	}
	wantCounts(t, counts, 3, 0)
	if posts.Saves() != 1 {
		t.Fatalf("saves = %d, want 1", posts.Saves())
	}

	if _, _, err := store.CurrentReaction(ctx, postID, legacy[1]); err != nil {
		t.Fatal(err)
	}
	if posts.Saves() != 1 {
		t.Fatalf("canonical post was written again: saves = %d", posts.Saves())
	}

	counts, err = store.Like(ctx, postID, primitive.NewObjectID())
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	wantCounts(t, counts, 4, 0)
}

func TestLikeOnLegacyPost(t *testing.T) {
	store, posts, _ := newTestStore(t)
	ctx := context.Background()
	legacy := ids(2)
	postID := primitive.NewObjectID()
	posts.PutRaw(models.RawPost{
		ID:       postID,
		Likes:    rawValue(t, legacy),
		Dislikes: rawValue(t, []primitive.ObjectID{}),
	})

	if _, err := store.Like(ctx, postID, legacy[0]); !errors.Is(err, ErrAlreadyLiked) {
		t.Fatalf("got %v, want ErrAlreadyLiked", err)
	}
	counts, err := store.Dislike(ctx, postID, legacy[0])
	if err != nil {
		t.Fatal(err)
	}
	wantCounts(t, counts, 1, 1)
}

func TestUserInBothSetsIsRepaired(t *testing.T) {
	store, posts, _ := newTestStore(t)
	ctx := context.Background()
	u := primitive.NewObjectID()
	postID := primitive.NewObjectID()
	posts.PutRaw(models.RawPost{
		ID:       postID,
		Likes:    rawValue(t, []primitive.ObjectID{u}),
		Dislikes: rawValue(t, []primitive.ObjectID{u}),
	})

	reaction, counts, err := store.CurrentReaction(ctx, postID, u)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if reaction != models.ReactionLike {
		t.Fatalf("reaction = %s, want like", reaction)
	}
	wantCounts(t, counts, 1, 0)

	counts, err = store.Dislike(ctx, postID, u)
	if err != nil {
		t.Fatalf("dislike: %v", err)
	}
	wantCounts(t, counts, 0, 1)

	counts, err = store.RemoveReaction(ctx, postID, u)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	wantCounts(t, counts, 0, 0)
	if reaction, _, _ := store.CurrentReaction(ctx, postID, u); reaction != models.ReactionNone {
		t.Fatalf("reaction after remove = %s, want none", reaction)
	}
}

func TestConcurrentLikesSameUser(t *testing.T) {
	store, posts, audit := newTestStore(t)
	ctx := context.Background()
	postID := putPost(t, posts, "race")
	u := primitive.NewObjectID()

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Like(ctx, postID, u)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyLiked):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d likes succeeded, want exactly 1", ok)
	}
	_, counts, err := store.CurrentReaction(ctx, postID, u)
	if err != nil {
		t.Fatal(err)
	}
	wantCounts(t, counts, 1, 0)
	if len(audit.actions()) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.actions()))
	}
}

func TestConcurrentDistinctUsers(t *testing.T) {
	store, posts, _ := newTestStore(t)
	ctx := context.Background()
	postID := putPost(t, posts, "crowd")

	const n = 40
	users := ids(n)
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u primitive.ObjectID) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = store.Like(ctx, postID, u)
			} else {
				_, err = store.Dislike(ctx, postID, u)
			}
			if err != nil {
				t.Errorf("user %d: %v", i, err)
			}
		}(i, u)
	}
	wg.Wait()

	_, counts, err := store.CurrentReaction(ctx, postID, users[0])
	if err != nil {
		t.Fatal(err)
	}
	wantCounts(t, counts, n/2, n/2)
}

// TestRandomOperationsKeepSetsExclusive drives random operations from a small
// set of users and checks the stored sets against a model after every step.
func TestRandomOperationsKeepSetsExclusive(t *testing.T) {
	store, posts, _ := newTestStore(t)
	ctx := context.Background()
	postID := putPost(t, posts, "fuzz")
	users := ids(5)
	model := map[primitive.ObjectID]models.Reaction{}
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 500; step++ {
		u := users[rng.Intn(len(users))]
		prev := model[u]
		if prev == "" {
			prev = models.ReactionNone
		}

		var err error
		switch rng.Intn(3) {
		case 0:
			_, err = store.Like(ctx, postID, u)
			if prev == models.ReactionLike {
				if !errors.Is(err, ErrAlreadyLiked) {
					t.Fatalf("step %d: got %v, want ErrAlreadyLiked", step, err)
				}
			} else {
				model[u] = models.ReactionLike
			}
		case 1:
			_, err = store.Dislike(ctx, postID, u)
			if prev == models.ReactionDislike {
				if !errors.Is(err, ErrAlreadyDisliked) {
					t.Fatalf("step %d: got %v, want ErrAlreadyDisliked", step, err)
				}
			} else {
				model[u] = models.ReactionDislike
			}
		case 2:
			_, err = store.RemoveReaction(ctx, postID, u)
			if prev == models.ReactionNone {
				if !errors.Is(err, ErrNoReaction) {
					t.Fatalf("step %d: got %v, want ErrNoReaction", step, err)
				}
			} else {
				model[u] = models.ReactionNone
			}
		}

		raw, err := posts.FindRaw(ctx, postID)
		if err != nil {
			t.Fatal(err)
		}
		post, changed := Normalize(*raw)
		if changed {
			t.Fatalf("step %d: stored post drifted from canonical shape", step)
		}
		var likes, dislikes int64
		for _, id := range users {
			if post.Likes.Has(id) && post.Dislikes.Has(id) {
				t.Fatalf("step %d: user %s in both sets", step, id.Hex())
			}
			if got, want := post.ReactionOf(id), model[id]; want != "" && got != want {
				t.Fatalf("step %d: user %s reaction = %s, want %s", step, id.Hex(), got, want)
			}
			switch model[id] {
			case models.ReactionLike:
				likes++
			case models.ReactionDislike:
				dislikes++
			}
		}
		wantCounts(t, post.Counts(), likes, dislikes)
	}
}

func TestAuditFailureDoesNotFailReaction(t *testing.T) {
	posts := memory.NewPostStore()
	users := memory.NewUserStore()
	uid := users.Put(models.User{FullName: "tester"})
	users.FailActivity(errors.New("disk full"))

	logger := zaptest.NewLogger(t)
	rec := activity.NewRecorder(users, logger, 8)
	ctx, cancel := context.WithCancel(context.Background())
	go rec.Run(ctx)
	defer func() {
		cancel()
		rec.Wait()
	}()

	store := NewStore(posts, rec, logger)
	postID := putPost(t, posts, "audit")

	counts, err := store.Like(context.Background(), postID, uid)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	wantCounts(t, counts, 1, 0)
}
