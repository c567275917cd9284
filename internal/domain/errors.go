package domain

import (
	"errors"
	"fmt"
)

// ErrPermanent marks completion-service failures that retrying cannot fix
// (bad credentials, rejected request, context length exceeded).
var ErrPermanent = errors.New("permanent service failure")

// GenerationErrorKind enumerates model client failures.
type GenerationErrorKind string

const (
	GenerationTimeout            GenerationErrorKind = "TIMEOUT"
	GenerationMalformedOutput    GenerationErrorKind = "MALFORMED_OUTPUT"
	GenerationServiceUnavailable GenerationErrorKind = "SERVICE_UNAVAILABLE"
)

// GenerationError is returned by the model client for a failed attempt.
type GenerationError struct {
	Kind GenerationErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation: " + string(e.Kind)
	}
	return fmt.Sprintf("generation: %s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *GenerationError) Retryable() bool {
	switch e.Kind {
	case GenerationTimeout:
		return true
	case GenerationServiceUnavailable:
		return !errors.Is(e.Err, ErrPermanent)
	default:
		return false
	}
}

// ScoringErrorKind enumerates scorer failures.
type ScoringErrorKind string

const ScoringInvalidPair ScoringErrorKind = "INVALID_PAIR"

// ScoringError reports a pair that cannot be scored. It is never fatal.
type ScoringError struct {
	Kind   ScoringErrorKind
	PairID string
	Reason string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring: %s: pair %s: %s", e.Kind, e.PairID, e.Reason)
}

// IOErrorKind enumerates dataset writer failures.
type IOErrorKind string

const (
	IOWriteFailure   IOErrorKind = "WRITE_FAILURE"
	IOPathUnwritable IOErrorKind = "PATH_UNWRITABLE"
)

// IOError is fatal to a run.
type IOError struct {
	Kind IOErrorKind
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io: %s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ConfigErrorKind enumerates configuration problems detected at startup.
type ConfigErrorKind string

const (
	ConfigInvalidThreshold   ConfigErrorKind = "INVALID_THRESHOLD"
	ConfigInvalidChunking    ConfigErrorKind = "INVALID_CHUNKING"
	ConfigInvalidConcurrency ConfigErrorKind = "INVALID_CONCURRENCY"
	ConfigInvalidTimeout     ConfigErrorKind = "INVALID_TIMEOUT"
	ConfigInvalidRetry       ConfigErrorKind = "INVALID_RETRY"
	ConfigInvalidProvider    ConfigErrorKind = "INVALID_PROVIDER"
)

// ConfigError is fatal before any processing starts.
type ConfigError struct {
	Kind   ConfigErrorKind
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s: %s", e.Kind, e.Field, e.Reason)
}
