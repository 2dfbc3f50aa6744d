package repository

import "errors"

var (
	// ErrConversionNotFound is returned when a conversion cannot be found.
	ErrConversionNotFound = errors.New("conversion not found")

	// ErrDuplicateConversion is returned when attempting to create a conversion that already exists.
	ErrDuplicateConversion = errors.New("conversion already exists")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrObjectNotFound is returned when a stored object does not exist.
	ErrObjectNotFound = errors.New("object not found")
)
