// Package errdefs defines the classified error type shared by all compile
// phases of the engine: configuration resolution, template processing, and
// step scheduling. Every failure detected during compilation is reported as
// an *Error so callers can distinguish the phase that failed and react to
// specific error codes.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the compile phase that produced it.
type Kind string

const (
	// KindConfig covers configuration failures: a required variable is
	// missing, a variable reference cycle, or a type coercion failure in a
	// conditional test.
	KindConfig Kind = "config"

	// KindTemplate covers template failures: cyclic baseline-source graphs,
	// duplicate names after iterator expansion, unknown named components,
	// and malformed iterator bounds.
	KindTemplate Kind = "template"

	// KindScheduling covers step scheduling failures: unresolvable step
	// merges and references to unknown scenarios, groups, or steps in a
	// selection or skip list.
	KindScheduling Kind = "scheduling"
)

// Error is a classified compile-phase error with context.
type Error struct {
	// Kind is the compile phase classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code identifies the specific failure for programmatic handling.
	Code string `json:"code,omitempty"`

	// Name is the variable, component, scenario, or step name involved.
	Name string `json:"name,omitempty"`

	// Section is the config section or template scope involved.
	Section string `json:"section,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Name != "" {
		msg += fmt.Sprintf(" (name=%s)", e.Name)
	}
	if e.Section != "" {
		msg += fmt.Sprintf(" (section=%s)", e.Section)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two classified errors match
// when their kind and code agree.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// NewConfigError creates a config-phase error.
func NewConfigError(message string, err error) *Error {
	return &Error{Kind: KindConfig, Message: message, Err: err}
}

// NewTemplateError creates a template-phase error.
func NewTemplateError(message string, err error) *Error {
	return &Error{Kind: KindTemplate, Message: message, Err: err}
}

// NewSchedulingError creates a scheduling-phase error.
func NewSchedulingError(message string, err error) *Error {
	return &Error{Kind: KindScheduling, Message: message, Err: err}
}

// WithCode adds an error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithName adds the offending name.
func (e *Error) WithName(name string) *Error {
	e.Name = name
	return e
}

// WithSection adds the config section or template scope.
func (e *Error) WithSection(section string) *Error {
	e.Section = section
	return e
}

// IsConfigError reports whether err is classified as a config error.
func IsConfigError(err error) bool {
	return isKind(err, KindConfig)
}

// IsTemplateError reports whether err is classified as a template error.
func IsTemplateError(err error) bool {
	return isKind(err, KindTemplate)
}

// IsSchedulingError reports whether err is classified as a scheduling error.
func IsSchedulingError(err error) bool {
	return isKind(err, KindScheduling)
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func isKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Error codes raised during the compile phase.
const (
	CodeRequiredMissing   = "REQUIRED_MISSING"
	CodeCyclicReference   = "CYCLIC_REFERENCE"
	CodeCoercionFailed    = "COERCION_FAILED"
	CodeUnknownVariable   = "UNKNOWN_VARIABLE"
	CodeCyclicBaseline    = "CYCLIC_BASELINE"
	CodeDuplicateName     = "DUPLICATE_NAME"
	CodeUnknownComponent  = "UNKNOWN_COMPONENT"
	CodeMalformedIterator = "MALFORMED_ITERATOR"
	CodeUnknownFunction   = "UNKNOWN_FUNCTION"
	CodeMergeAmbiguity    = "MERGE_AMBIGUITY"
	CodeUnknownSelection  = "UNKNOWN_SELECTION"
	CodeMissingBaseline   = "MISSING_BASELINE"
	CodeFormat            = "FORMAT_ERROR"
)
