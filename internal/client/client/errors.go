package client

import "errors"

var (
	ErrMissingToken = errors.New("response carried no access token")
	ErrInvalidURL   = errors.New("invalid backend url")
)
