// Package errkind classifies worker-step failures into the four kinds of
// spec §7, so the worker loop can decide retry vs. dead-letter vs. process
// exit from the error alone.
package errkind

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Unknown is never intentionally returned; it signals a step that
	// forgot to classify its error, and the worker loop treats it as
	// Transient (safest default: retry rather than silently drop or crash).
	Unknown Kind = iota
	// Transient: network, vector-store 5xx, DB busy. Retried with backoff
	// at the worker boundary; the queue item remains claimed.
	Transient
	// Validation: bad JSON from the LLM, schema mismatch, invalid entity
	// names. The producing step returns an empty/partial result; downstream
	// steps proceed with what is available.
	Validation
	// Data: missing vector, mismatched embedding dimension, near-zero
	// magnitude. Reported with an explicit reason; does not abort
	// processing.
	Data
	// Fatal: store corruption, config contradiction. The worker exits; a
	// supervisor restarts it with backoff.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "TRANSIENT"
	case Validation:
		return "VALIDATION"
	case Data:
		return "DATA"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// classified wraps an error with its Kind and, for DATA errors, an
// explicit reason string (spec §7).
type classified struct {
	kind   Kind
	reason string
	err    error
}

func (c *classified) Error() string {
	if c.reason != "" {
		return fmt.Sprintf("%s: %s: %v", c.kind, c.reason, c.err)
	}
	return fmt.Sprintf("%s: %v", c.kind, c.err)
}

func (c *classified) Unwrap() error { return c.err }

func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: err}
}

// WrapReason wraps an error with an explicit reason, for DATA-kind errors
// whose reason must be surfaced to a SimilarityReport or diagnostics
// stream (§7).
func WrapReason(kind Kind, reason string, err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, reason: reason, err: err}
}

// Of returns the Kind carried by err, or Unknown if err was never
// classified.
func Of(err error) Kind {
	var c *classified
	if errors.As(err, &c) {
		return c.kind
	}
	return Unknown
}

// Reason returns the explicit reason string carried by a DATA-kind error,
// or "" if none was attached.
func Reason(err error) string {
	var c *classified
	if errors.As(err, &c) {
		return c.reason
	}
	return ""
}

// Is reports whether err was classified as kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
