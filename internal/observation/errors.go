package observation

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy.
var (
	// ErrFileNotFound is returned when a required input file is missing.
	ErrFileNotFound = errors.New("file not found")

	// ErrSchema is returned when a required field or array is absent from an input.
	ErrSchema = errors.New("schema error")

	// ErrEmptyReferenceSet marks a join run against zero ground observations.
	// It is informational: the join still completes with null join fields.
	ErrEmptyReferenceSet = errors.New("empty reference set")

	// ErrNoTrainableData is returned when no row survives feature/target filtering.
	ErrNoTrainableData = errors.New("no trainable data")

	// ErrUpstreamFetch wraps a single failed call to an external provider.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
)

// MissingFile returns an ErrFileNotFound error naming path.
func MissingFile(path string) error {
	return fmt.Errorf("%w: %s", ErrFileNotFound, path)
}

// MissingField returns an ErrSchema error naming the absent field.
func MissingField(source, field string) error {
	return fmt.Errorf("%w: %s is missing %q", ErrSchema, source, field)
}
