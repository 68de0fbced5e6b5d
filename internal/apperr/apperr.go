package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies routing failures so callers can react without string matching.
type Kind string

const (
	KindConfig        Kind = "config"
	KindRuleNotFound  Kind = "rule_not_found"
	KindDataSource    Kind = "data_source"
	KindChunkDispatch Kind = "chunk_dispatch"
	KindAggregation   Kind = "aggregation"
)

// Error is a typed routing error. Two errors match under errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrConfig        = &Error{Kind: KindConfig, Message: "invalid configuration"}
	ErrRuleNotFound  = &Error{Kind: KindRuleNotFound, Message: "rule not found"}
	ErrDataSource    = &Error{Kind: KindDataSource, Message: "data source failure"}
	ErrChunkDispatch = &Error{Kind: KindChunkDispatch, Message: "chunk dispatch failed"}
	ErrAggregation   = &Error{Kind: KindAggregation, Message: "aggregation failed"}
)

// New creates a typed error wrapping err (which may be nil).
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Configf builds a configuration error from a format string.
func Configf(format string, args ...any) *Error {
	return New(KindConfig, fmt.Sprintf(format, args...), nil)
}

// RuleNotFound reports an unregistered rule name.
func RuleNotFound(name string) *Error {
	return New(KindRuleNotFound, fmt.Sprintf("rule %q is not registered", name), nil)
}

// DataSource wraps a fetch failure for the given store label.
func DataSource(label string, err error) *Error {
	return New(KindDataSource, fmt.Sprintf("store %q", label), err)
}

// Aggregationf builds an aggregation error from a format string.
func Aggregationf(format string, args ...any) *Error {
	return New(KindAggregation, fmt.Sprintf(format, args...), nil)
}

// KindOf returns the kind of the first typed error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsConfig(err error) bool        { return KindOf(err) == KindConfig }
func IsRuleNotFound(err error) bool  { return KindOf(err) == KindRuleNotFound }
func IsDataSource(err error) bool    { return KindOf(err) == KindDataSource }
func IsChunkDispatch(err error) bool { return KindOf(err) == KindChunkDispatch }
func IsAggregation(err error) bool   { return KindOf(err) == KindAggregation }
