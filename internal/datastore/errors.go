package datastore

import "errors"

var (
	// ErrDataNotFound is returned when no blob exists for a uid.
	ErrDataNotFound = errors.New("data not found")
	// ErrInvalidUID is returned for uids that escape the store or are empty.
	ErrInvalidUID = errors.New("invalid uid")
)
