package store

import "errors"

var (
	ErrRequestNotFound  = errors.New("request not found")
	ErrInvalidState     = errors.New("invalid request state")
	ErrRequestDeleted   = errors.New("request is deleted")
	ErrAccessDenied     = errors.New("access denied")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrHostelUnresolved = errors.New("hostel gender unresolved")
)
