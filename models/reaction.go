package models

// Reaction is a user's state on a post.
type Reaction string

const (
	ReactionNone    Reaction = "none"
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

// Field is the post field holding the reaction's set.
func (r Reaction) Field() string {
	switch r {
	case ReactionLike:
		return "likes"
	case ReactionDislike:
		return "dislikes"
	}
	return ""
}

// Counts is what every reaction operation reports back.
type Counts struct {
	Likes    int64 `json:"likesCount"`
	Dislikes int64 `json:"dislikesCount"`
}

// ReactionChange describes one atomic transition of a single user's reaction:
// Remove is taken out of its set and Add is put into its set. Either side may
// be ReactionNone.
type ReactionChange struct {
	Add    Reaction
	Remove Reaction
}
