package models

import "errors"

// ErrPostNotFound is shared by every component that addresses posts by id.
var ErrPostNotFound = errors.New("post not found")
