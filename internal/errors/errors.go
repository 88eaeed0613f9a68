// Package errors wraps errors with a category, the reporting component and
// context fields. Categories drive HTTP status mapping and builder failure
// reasons; an installed telemetry reporter receives every built error.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors by how callers react to them.
type ErrorCategory string

// CategorizedError is implemented by errors that know their own category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	// Request and image errors
	CategoryInvalidInput     ErrorCategory = "invalid-input"
	CategoryInvalidHashType  ErrorCategory = "invalid-hash-type"
	CategoryDecode           ErrorCategory = "decode"
	CategoryUnsupportedImage ErrorCategory = "unsupported-format"
	CategoryHashMismatch     ErrorCategory = "hash-mismatch"

	// Catalog and matching outcomes
	CategoryConflict    ErrorCategory = "conflict"
	CategoryNotFound    ErrorCategory = "not-found"
	CategoryNoMatch     ErrorCategory = "no-match"
	CategoryNoGoodMatch ErrorCategory = "no-good-match"

	// Infrastructure
	CategoryUpstream      ErrorCategory = "upstream"
	CategoryNetwork       ErrorCategory = "network"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryDatabase      ErrorCategory = "database"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryValidation    ErrorCategory = "validation"
	CategoryLimit         ErrorCategory = "limit"
	CategoryGeneric       ErrorCategory = "generic"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"
)

// ComponentUnknown is reported when no component was set or detected.
const ComponentUnknown = "unknown"

// modulePrefix identifies frames of this module during component detection.
const (
	modulePrefix = "github.com/tcgvision/cardmatch/"
	selfPackage  = modulePrefix + "internal/errors"
)

// componentNames maps package path segments to the component reported for
// errors built there without an explicit Component.
var componentNames = map[string]string{
	"internal/imagehash":  "imagehash",
	"internal/catalog":    "catalog",
	"internal/matcher":    "matcher",
	"internal/builder":    "builder",
	"internal/tcgdex":     "tcgdex",
	"internal/httpclient": "httpclient",
	"internal/conf":       "configuration",
	"internal/api":        "api",
	"cmd":                 "cli",
}

// hasActiveReporting is true while a telemetry reporter is installed.
var hasActiveReporting atomic.Bool

// EnhancedError is an error with category, component and context.
type EnhancedError struct {
	Err      error
	Category ErrorCategory
	Context  map[string]any

	mu        sync.Mutex
	component string
	reported  bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, anything else through the
// wrapped chain.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return Is(ee.Err, target)
}

// ErrorCategory implements CategorizedError.
func (ee *EnhancedError) ErrorCategory() ErrorCategory { return ee.Category }

// GetComponent returns the component that built the error.
func (ee *EnhancedError) GetComponent() string { return ee.component }

// GetContext returns a copy of the context fields.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// GetMessage returns the wrapped error's message.
func (ee *EnhancedError) GetMessage() string {
	if ee.Err == nil {
		return ""
	}
	return ee.Err.Error()
}

// MarkReported records that telemetry has seen the error.
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	ee.reported = true
	ee.mu.Unlock()
}

// IsReported reports whether telemetry has seen the error.
func (ee *EnhancedError) IsReported() bool {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	return ee.reported
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts an error wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts an error from a format string.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the reporting component.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. Without one the category of the wrapped error
// is inherited.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds one context field.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// FileContext records the kind and extension of a path, not the path itself.
func (eb *ErrorBuilder) FileContext(filePath string) *ErrorBuilder {
	if filePath == "" {
		return eb
	}
	kind := "relative-path"
	if strings.ContainsAny(filePath, `/\`) {
		kind = "absolute-path"
	}
	ext := "none"
	if dot := strings.LastIndex(filePath, "."); dot > 0 && dot < len(filePath)-1 {
		ext = strings.ToLower(filePath[dot+1:])
	}
	return eb.Context("file_type", kind).Context("file_extension", ext)
}

// NetworkContext records the URL scheme and the timeout in force.
func (eb *ErrorBuilder) NetworkContext(url string, timeout time.Duration) *ErrorBuilder {
	if url != "" {
		scheme := "other-protocol"
		switch lower := strings.ToLower(url); {
		case strings.HasPrefix(lower, "https://"):
			scheme = "https-endpoint"
		case strings.HasPrefix(lower, "http://"):
			scheme = "http-endpoint"
		}
		eb.Context("url_category", scheme)
	}
	if timeout > 0 {
		eb.Context("timeout_seconds", timeout.Seconds())
	}
	return eb
}

// Timing records the operation that failed and how long it ran.
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).Context("duration_ms", duration.Milliseconds())
}

// Build creates the error and hands it to the telemetry reporter, if any.
// Component detection walks the stack, so it only runs when a reporter
// needs it.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Category:  eb.category,
		Context:   eb.context,
		component: eb.component,
	}
	if ee.Category == "" {
		ee.Category = inheritCategory(eb.err)
	}

	if !hasActiveReporting.Load() {
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
		return ee
	}

	if ee.component == "" {
		ee.component = detectComponent()
	}
	if eb.category == "" {
		ee.Category = detectCategory(eb.err)
	}
	reportToTelemetry(ee)
	return ee
}

// detectComponent names the first caller outside this package that belongs
// to a known package of the module.
func detectComponent() string {
	pcs := make([]uintptr, 32)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(3, pcs)])
	for {
		frame, more := frames.Next()
		if name, ok := componentOf(frame.Function); ok {
			return name
		}
		if !more {
			return ComponentUnknown
		}
	}
}

func componentOf(function string) (string, bool) {
	rest, ok := strings.CutPrefix(function, modulePrefix)
	if !ok || strings.HasPrefix(function, selfPackage) {
		return "", false
	}
	// Longest matching package path wins, so internal/api/middleware maps to api.
	best, name := -1, ""
	for pkg, component := range componentNames {
		if (rest == pkg || strings.HasPrefix(rest, pkg+".") || strings.HasPrefix(rest, pkg+"/")) && len(pkg) > best {
			best, name = len(pkg), component
		}
	}
	return name, best >= 0
}

// inheritCategory returns the category of a wrapped categorized error, or generic.
func inheritCategory(err error) ErrorCategory {
	var catErr CategorizedError
	if err != nil && stderrors.As(err, &catErr) && catErr.ErrorCategory() != "" {
		return catErr.ErrorCategory()
	}
	return CategoryGeneric
}

// detectCategory guesses a category for uncategorized errors from the chain
// and, failing that, the message.
func detectCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}
	if cat := inheritCategory(err); cat != CategoryGeneric {
		return cat
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case stderrors.Is(err, context.Canceled):
		return CategoryCancellation
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return CategoryTimeout
	case strings.Contains(msg, "context canceled"):
		return CategoryCancellation
	case strings.Contains(msg, "connection"):
		return CategoryNetwork
	case strings.Contains(msg, "file"), strings.Contains(msg, "open"):
		return CategoryFileIO
	case strings.Contains(msg, "invalid"):
		return CategoryInvalidInput
	}
	return CategoryGeneric
}

// FileError is a file-io error for filePath.
func FileError(err error, filePath string) *EnhancedError {
	return New(err).
		Category(CategoryFileIO).
		FileContext(filePath).
		Build()
}

// InvalidInput is an invalid-input error for a bad request parameter.
func InvalidInput(component, message string) *EnhancedError {
	return New(NewStd(message)).
		Component(component).
		Category(CategoryInvalidInput).
		Build()
}

// NewStd, Is, As and Join pass through to the standard errors package so
// callers need a single import.

func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// CategoryOf returns the category of the first categorized error in err's
// chain, generic when there is none and empty for a nil error.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	return inheritCategory(err)
}

// IsCategory reports whether err carries category.
func IsCategory(err error, category ErrorCategory) bool {
	return err != nil && CategoryOf(err) == category
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsCategory(err, CategoryNotFound) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return IsCategory(err, CategoryConflict) }
