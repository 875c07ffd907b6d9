package store

import "fmt"

// LoadError reports a dataset that could not be read or does not match the schema.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load dataset %q: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
