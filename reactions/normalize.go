package reactions

import (
	"agora/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Normalize converts a stored post to canonical shape. A likes or dislikes
// field stored as a bare array of user ids becomes {count: len, users: ids};
// a missing or unrecognized field becomes {count: 0, users: []}; a document
// whose count disagrees with its users, or whose users repeat, is recounted.
// A user found in both sets keeps the like and loses the dislike.
// The flag reports whether anything changed and must be written back.
func Normalize(raw models.RawPost) (models.Post, bool) {
	likes, fixLikes := normalizeSet(raw.Likes)
	dislikes, fixDislikes := normalizeSet(raw.Dislikes)
	if kept := exclude(dislikes.Users, likes.Users); len(kept) != len(dislikes.Users) {
		dislikes = models.ReactionSet{Count: int64(len(kept)), Users: kept}
		fixDislikes = true
	}

	return models.Post{
		ID:         raw.ID,
		UserID:     raw.UserID,
		Title:      raw.Title,
		Text:       raw.Text,
		Tags:       raw.Tags,
		ImageURL:   raw.ImageURL,
		ViewsCount: raw.ViewsCount,
		Likes:      likes,
		Dislikes:   dislikes,
		CreatedAt:  raw.CreatedAt,
		UpdatedAt:  raw.UpdatedAt,
	}, fixLikes || fixDislikes
}

func normalizeSet(v bson.RawValue) (models.ReactionSet, bool) {
	switch v.Type {
	case bson.TypeArray:
		users := unique(objectIDs(v))
		return models.ReactionSet{Count: int64(len(users)), Users: users}, true

	case bson.TypeEmbeddedDocument:
		doc, ok := v.DocumentOK()
		if !ok {
			return models.EmptyReactionSet(), true
		}
		usersVal, err := doc.LookupErr("users")
		if err != nil || usersVal.Type != bson.TypeArray {
			return models.EmptyReactionSet(), true
		}
		stored := objectIDs(usersVal)
		users := unique(stored)
		count, ok := number(doc)
		if !ok || count != int64(len(users)) || len(users) != len(stored) || !allObjectIDs(usersVal, len(stored)) {
			return models.ReactionSet{Count: int64(len(users)), Users: users}, true
		}
		return models.ReactionSet{Count: count, Users: users}, false
	}
	return models.EmptyReactionSet(), true
}

// objectIDs reads the array's user ids. Hex strings are accepted; anything
// else is skipped.
func objectIDs(arr bson.RawValue) []primitive.ObjectID {
	ids := []primitive.ObjectID{}
	values, err := arr.Array().Values()
	if err != nil {
		return ids
	}
	for _, el := range values {
		if id, ok := el.ObjectIDOK(); ok {
			ids = append(ids, id)
			continue
		}
		if s, ok := el.StringValueOK(); ok {
			if id, err := primitive.ObjectIDFromHex(s); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func allObjectIDs(arr bson.RawValue, n int) bool {
	values, err := arr.Array().Values()
	if err != nil || len(values) != n {
		return false
	}
	for _, el := range values {
		if el.Type != bson.TypeObjectID {
			return false
		}
	}
	return true
}

func number(doc bson.Raw) (int64, bool) {
	v, err := doc.LookupErr("count")
	if err != nil {
		return 0, false
	}
	if n, ok := v.Int32OK(); ok {
		return int64(n), true
	}
	if n, ok := v.Int64OK(); ok {
		return n, true
	}
	if f, ok := v.DoubleOK(); ok && f == float64(int64(f)) {
		return int64(f), true
	}
	return 0, false
}

func unique(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// exclude returns ids without the members of drop.
func exclude(ids, drop []primitive.ObjectID) []primitive.ObjectID {
	if len(ids) == 0 || len(drop) == 0 {
		return ids
	}
	skip := make(map[primitive.ObjectID]struct{}, len(drop))
	for _, id := range drop {
		skip[id] = struct{}{}
	}
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
