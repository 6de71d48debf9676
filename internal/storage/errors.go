package storage

import (
	"errors"
	"fmt"
)

// ErrQuery is matched by every query failure returned from Repository.Query.
var ErrQuery = errors.New("query failed")

// QueryError reports a failed query. The loaded tables are unaffected.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrQuery) true for every *QueryError.
func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// WrapQueryErr wraps a non-nil err as a *QueryError.
func WrapQueryErr(query string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	return &QueryError{Query: query, Err: err}
}
