// Package model holds the data-model types shared across components:
// providers, managed wallets, smart-account linkage, authorized clients,
// call records and the USDC ledger rows.
package model

import "fmt"

// TaggedError is an error shape carrying a stable Code for programmatic
// matching plus an optional wrapped cause. No component in this module
// returns it: delegation status, payment attempt results and verifier
// failures use their own status types and sentinel errors.
type TaggedError struct {
	Code    string
	Message string
	Err     error
}

func (e *TaggedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TaggedError) Unwrap() error {
	return e.Err
}

// NewError builds a TaggedError, wrapping err if non-nil.
func NewError(code, message string, err error) *TaggedError {
	return &TaggedError{Code: code, Message: message, Err: err}
}
