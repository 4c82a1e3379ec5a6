package common

import "errors"

var (
	ErrPostNotFound    = errors.New("scheduled post not found")
	ErrTopicNotFound   = errors.New("topic not found")
	ErrPageNotFound    = errors.New("page not found")
	ErrPostNotEditable = errors.New("only pending posts can be edited")
	ErrPostInFlight    = errors.New("post is being delivered")
)
