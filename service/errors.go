package service

import "errors"

var (
	ErrUsernameTaken  = errors.New("username already taken")
	ErrBadCredentials = errors.New("invalid username or password")
	ErrUserNotFound   = errors.New("user not found")
	ErrPollNotFound   = errors.New("poll not found")
	ErrInvalidChoice  = errors.New("choice does not exist in this poll")
	ErrInvalidInput   = errors.New("invalid input")
)
