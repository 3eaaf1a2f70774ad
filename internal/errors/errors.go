// Package errors provides centralized error handling with categories and structured context.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

// CategorizedError is an interface for errors that can specify their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryDatabase      ErrorCategory = "database"
	CategoryBlobStorage   ErrorCategory = "blob-storage"
	CategoryHTTP          ErrorCategory = "http-request"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryGeneric       ErrorCategory = "generic"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryIntegrity     ErrorCategory = "integrity"
	CategoryAuth          ErrorCategory = "authentication"
	CategoryLimit         ErrorCategory = "limit"
	CategorySystem        ErrorCategory = "system-resource"
)

// Priority constants for error prioritization
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	component string         // Component where error occurred (lazily detected)
	Category  ErrorCategory  // Error category for better grouping
	Priority  string         // Explicit priority override (optional)
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
	mu        sync.RWMutex   // Mutex to protect concurrent access
	detected  bool           // Whether component has been auto-detected
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is implements error type checking
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetComponent returns the component name, detecting it lazily if needed
func (ee *EnhancedError) GetComponent() string {
	ee.mu.RLock()
	if ee.detected || ee.component != "" {
		component := ee.component
		ee.mu.RUnlock()
		return component
	}
	ee.mu.RUnlock()

	ee.mu.Lock()
	defer ee.mu.Unlock()

	// Double-check in case another goroutine detected it while we were waiting
	if ee.component == "" && !ee.detected {
		ee.component = detectComponent()
		ee.detected = true
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
	}

	return ee.component
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetPriority returns the explicit priority if set, empty string otherwise
func (ee *EnhancedError) GetPriority() string {
	return ee.Priority
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	if ee.Context == nil {
		return nil
	}

	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New creates a new error with enhanced context
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{
		err: err,
	}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name (auto-detected if not set)
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority sets the explicit priority override for the error
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		// Invalid priority values fall back to medium
		if priority != "" {
			eb.priority = PriorityMedium
		}
	}
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// FileContext adds file-specific context (path is reduced to its extension and size class)
func (eb *ErrorBuilder) FileContext(filePath string, fileSize int64) *ErrorBuilder {
	if filePath != "" {
		if eb.context == nil {
			eb.context = make(map[string]any)
		}
		eb.context["file_extension"] = getFileExtension(filePath)
	}
	if fileSize > 0 {
		if eb.context == nil {
			eb.context = make(map[string]any)
		}
		eb.context["file_size_category"] = categorizeFileSize(fileSize)
	}
	return eb
}

// Build creates the EnhancedError and notifies registered hooks
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.err == nil {
		eb.err = NewStd("unspecified error")
	}

	if !hasHooks() {
		ee := &EnhancedError{
			Err:       eb.err,
			component: eb.component,
			Category:  eb.category,
			Priority:  eb.priority,
			Context:   eb.context,
			Timestamp: time.Now(),
			detected:  eb.component != "",
		}
		if ee.component == "" {
			ee.component = ComponentUnknown
			ee.detected = true
		}
		if ee.Category == "" {
			ee.Category = CategoryGeneric
		}
		return ee
	}

	// Hooks see fully classified errors, so pay for detection here
	if eb.component == "" {
		eb.component = detectComponent()
	}
	if eb.category == "" {
		eb.category = detectCategory(eb.err, eb.component)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		component: eb.component,
		Category:  eb.category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		detected:  true,
	}

	runHooks(ee)

	return ee
}

// Component registry for dynamic component detection
var (
	componentRegistry = make(map[string]string)
	registryMutex     sync.RWMutex
)

// RegisterComponent registers a package path pattern with a component name
func RegisterComponent(packagePattern, componentName string) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	componentRegistry[packagePattern] = componentName
}

func init() {
	RegisterComponent("internal/records", "records")
	RegisterComponent("internal/datastore", "datastore")
	RegisterComponent("internal/blobstore", "blobstore")
	RegisterComponent("internal/conf", "configuration")
	RegisterComponent("internal/api", "api")
}

// detectComponent walks the call stack to find the first registered component
func detectComponent() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	if n == len(pcs) {
		pcs = make([]uintptr, 32)
		n = runtime.Callers(2, pcs)
	}

	for i := range n {
		fn := runtime.FuncForPC(pcs[i])
		if fn == nil {
			continue
		}

		funcName := fn.Name()
		if strings.Contains(funcName, "/internal/errors.") {
			continue
		}

		if component := lookupComponent(funcName); component != ComponentUnknown {
			return component
		}
	}

	return ComponentUnknown
}

// lookupComponent searches the registry for a matching component
func lookupComponent(funcName string) string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	for pattern, component := range componentRegistry {
		if strings.Contains(funcName, pattern) {
			return component
		}
	}

	return ComponentUnknown
}

// detectCategory derives a category from the error chain or its message
func detectCategory(err error, component string) ErrorCategory {
	var catErr CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.ErrorCategory()
	}

	var enhErr *EnhancedError
	if stderrors.As(err, &enhErr) && enhErr.Category != "" {
		return enhErr.Category
	}

	errorMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errorMsg, "not found"):
		return CategoryNotFound
	case strings.Contains(errorMsg, "duplicate") || strings.Contains(errorMsg, "unique constraint"):
		return CategoryConflict
	case strings.Contains(errorMsg, "validation") || strings.Contains(errorMsg, "invalid"):
		return CategoryValidation
	case strings.Contains(errorMsg, "file") || strings.Contains(errorMsg, "read") || strings.Contains(errorMsg, "open"):
		return CategoryFileIO
	}

	switch component {
	case "datastore":
		return CategoryDatabase
	case "blobstore":
		return CategoryBlobStorage
	case "api":
		return CategoryHTTP
	case "configuration":
		return CategoryConfiguration
	}

	return CategoryGeneric
}

// getFileExtension extracts file extension for categorization
func getFileExtension(path string) string {
	if lastDot := strings.LastIndex(path, "."); lastDot > 0 && lastDot < len(path)-1 {
		return strings.ToLower(path[lastDot+1:])
	}
	return "none"
}

// categorizeFileSize groups file sizes into categories
func categorizeFileSize(size int64) string {
	switch {
	case size < 1024:
		return "tiny"
	case size < 1024*1024:
		return "small"
	case size < 10*1024*1024:
		return "medium"
	case size < 100*1024*1024:
		return "large"
	default:
		return "very-large"
	}
}

// Standard library passthrough functions.
// These allow this package to be a drop-in replacement for the standard errors package.

// NewStd creates a new standard error (passthrough to standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target (passthrough to standard library)
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target (passthrough to standard library)
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err (passthrough to standard library)
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors (passthrough to standard library)
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}

// IsNotFound checks if an error is an EnhancedError with CategoryNotFound.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}
