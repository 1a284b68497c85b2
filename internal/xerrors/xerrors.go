// Package xerrors defines the indexing engine's typed error taxonomy:
// a small set of kinds rather than a catch-all, each wrapping an
// underlying error with enough context (component + operation + key)
// to debug without string-matching.
package xerrors

import "fmt"

// Kind is one of the error categories the engine distinguishes.
type Kind string

const (
	// KindConfig marks invalid configuration; fatal at startup.
	KindConfig Kind = "config"
	// KindInfrastructure marks an unreachable dependency at bring-up.
	KindInfrastructure Kind = "infrastructure"
	// KindParse marks a per-file, recoverable extraction failure.
	KindParse Kind = "parse"
	// KindProvider marks an embedding/reranker provider failure.
	KindProvider Kind = "provider"
	// KindStorage marks a metadata/vector/graph store failure.
	KindStorage Kind = "storage"
	// KindConsistency marks a violated invariant; always fatal for
	// the operation, never silently coerced.
	KindConsistency Kind = "consistency"
	// KindOutbox marks a per-entry outbox application failure.
	KindOutbox Kind = "outbox"
)

// Error is the engine's structured error type.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Key       string
	Err       error
	Transient bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Component, e.Operation)
	if e.Key != "" {
		msg = fmt.Sprintf("%s[%s]", msg, e.Key)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given kind.
func New(kind Kind, component, operation string, err error) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Err: err}
}

// WithKey attaches the identifying key (entity id, file path, outbox
// id, ...) the error occurred on, for easier correlation in logs.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// AsTransient marks the error as retriable.
func (e *Error) AsTransient() *Error {
	e.Transient = true
	return e
}

// Config wraps a configuration validation failure.
func Config(component, operation string, err error) *Error {
	return New(KindConfig, component, operation, err)
}

// Infrastructure wraps a dependency bring-up failure.
func Infrastructure(component, operation string, err error) *Error {
	return New(KindInfrastructure, component, operation, err)
}

// Parse wraps a per-file extraction failure; always recoverable.
func Parse(component, operation string, err error) *Error {
	return New(KindParse, component, operation, err)
}

// Provider wraps an embedding/reranker provider failure.
func Provider(component, operation string, err error, transient bool) *Error {
	e := New(KindProvider, component, operation, err)
	e.Transient = transient
	return e
}

// Storage wraps a metadata/vector/graph store failure.
func Storage(component, operation string, err error, transient bool) *Error {
	e := New(KindStorage, component, operation, err)
	e.Transient = transient
	return e
}

// Consistency wraps a violated invariant. Never coerce these away.
func Consistency(component, operation string, err error) *Error {
	return New(KindConsistency, component, operation, err)
}

// Outbox wraps a per-entry outbox application failure.
func Outbox(component, operation string, err error) *Error {
	return New(KindOutbox, component, operation, err)
}

// KindOf returns the Kind of the first *Error in err's chain, or ""
// when the chain carries no typed error.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsTransient reports whether err (or a wrapped *Error within it) was
// marked transient and can reasonably be retried.
func IsTransient(err error) bool {
	var e *Error
	for err != nil {
		if asErr, ok := err.(*Error); ok {
			e = asErr
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Transient
}
