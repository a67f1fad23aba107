package ttypes

import (
	"errors"
	"fmt"
)

// Stage identifies which part of an invocation failed.
type Stage string

const (
	StageConfiguration Stage = "configuration"
	StageSynthesis     Stage = "synthesis"
	StageCache         Stage = "cache"
	StagePlayback      Stage = "playback"
)

// Stage sentinels. errors.Is matches any Error reported at that stage.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrSynthesis     = errors.New("synthesis error")
	ErrCacheIO       = errors.New("cache I/O error")
	ErrPlayback      = errors.New("playback error")
)

// Code sentinels. errors.Is matches an Error carrying that code.
var (
	// ErrMissingCredential indicates the API key is absent or empty
	ErrMissingCredential = errors.New("missing API credential")

	// ErrAuthentication indicates the remote service rejected the credential
	ErrAuthentication = errors.New("authentication rejected")

	// ErrTransientNetwork indicates the connection failed or dropped mid-stream
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrService indicates any other non-2xx response
	ErrService = errors.New("service error")

	// ErrInterrupted indicates the caller canceled the operation
	ErrInterrupted = errors.New("interrupted")
)

// ErrorCode identifies specific failure kinds within a stage.
type ErrorCode string

const (
	CodeInvalidConfig     ErrorCode = "INVALID_CONFIG"
	CodeMissingCredential ErrorCode = "MISSING_CREDENTIAL"

	CodeAuthentication   ErrorCode = "AUTHENTICATION"
	CodeTransientNetwork ErrorCode = "TRANSIENT_NETWORK"
	CodeService          ErrorCode = "SERVICE"
	CodeInterrupted      ErrorCode = "INTERRUPTED"

	CodeCacheIO ErrorCode = "CACHE_IO"

	CodePlayback ErrorCode = "PLAYBACK"
)

var codeSentinels = map[ErrorCode]error{
	CodeMissingCredential: ErrMissingCredential,
	CodeAuthentication:    ErrAuthentication,
	CodeTransientNetwork:  ErrTransientNetwork,
	CodeService:           ErrService,
	CodeInterrupted:       ErrInterrupted,
}

var stageSentinels = map[Stage]error{
	StageConfiguration: ErrConfiguration,
	StageSynthesis:     ErrSynthesis,
	StageCache:         ErrCacheIO,
	StagePlayback:      ErrPlayback,
}

// Error is a failure tagged with the stage that produced it.
type Error struct {
	Stage   Stage
	Code    ErrorCode
	Message string
	Cause   error

	// StatusCode is the HTTP status for service errors, zero otherwise.
	StatusCode int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the stage or code sentinel of e.
func (e *Error) Is(target error) bool {
	if s, ok := stageSentinels[e.Stage]; ok && s == target {
		return true
	}
	if s, ok := codeSentinels[e.Code]; ok && s == target {
		return true
	}
	return false
}

// NewError creates a new stage error.
func NewError(stage Stage, code ErrorCode, message string, cause error) *Error {
	return &Error{
		Stage:   stage,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError reports an invalid or incomplete configuration.
func ConfigError(code ErrorCode, message string, cause error) *Error {
	return NewError(StageConfiguration, code, message, cause)
}

// SynthesisError reports a failed or interrupted remote synthesis.
func SynthesisError(code ErrorCode, message string, cause error) *Error {
	return NewError(StageSynthesis, code, message, cause)
}

// CacheError reports a local filesystem failure in the cache directory.
func CacheError(message string, cause error) *Error {
	return NewError(StageCache, CodeCacheIO, message, cause)
}

// PlaybackError reports a failure of the local media backend.
func PlaybackError(message string, cause error) *Error {
	return NewError(StagePlayback, CodePlayback, message, cause)
}

// StageOf returns the stage of the first Error in err's chain, or "" if none.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
