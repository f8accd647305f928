package tool

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for error classification.
var (
	// ErrSecurityViolation indicates that source text matched a denied
	// construct or imported a module outside the allowlist.
	ErrSecurityViolation = errors.New("security violation")

	// ErrStructuralViolation indicates that source text does not have the
	// required shape, such as a missing entry point.
	ErrStructuralViolation = errors.New("structural violation")

	// ErrCompile indicates that validated source text could not be built.
	ErrCompile = errors.New("compile error")

	// ErrToolNotFound indicates that no active definition exists for the
	// tool and tenant.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNotCompiled indicates that a tool is not in the compilation
	// cache and on-demand compilation is unavailable.
	ErrToolNotCompiled = errors.New("tool not compiled")

	// ErrCircularDependency indicates that a nested invocation would
	// re-enter a tool already on the call stack.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrExecutionTimeout indicates that a tool did not finish within its
	// time budget.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrExecution indicates a runtime fault raised by a tool.
	ErrExecution = errors.New("execution error")

	// ErrInvalidParams indicates that parameters do not satisfy the tool's
	// input schema.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrConfiguration indicates an invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")
)

// SecurityViolation reports the denied construct or module found in a tool.
type SecurityViolation struct {
	// ToolID is the tool being validated.
	ToolID string

	// Construct names the offending pattern or module.
	Construct string

	// Import is true when Construct is a module outside the allowlist.
	Import bool
}

// Error returns the error message.
func (e *SecurityViolation) Error() string {
	if e.Import {
		return fmt.Sprintf("security violation in %s: disallowed import %q", e.ToolID, e.Construct)
	}
	return fmt.Sprintf("security violation in %s: denied construct %q", e.ToolID, e.Construct)
}

// Is reports whether this error matches the target.
func (e *SecurityViolation) Is(target error) bool {
	return target == ErrSecurityViolation
}

// StructuralViolation reports a tool whose source lacks the required shape.
type StructuralViolation struct {
	ToolID string
	Reason string
}

// Error returns the error message.
func (e *StructuralViolation) Error() string {
	return fmt.Sprintf("structural violation in %s: %s", e.ToolID, e.Reason)
}

// Is reports whether this error matches the target.
func (e *StructuralViolation) Is(target error) bool {
	return target == ErrStructuralViolation
}

// CompileError represents a failure to build validated source.
// It includes optional source location information for debugging.
type CompileError struct {
	// ToolID is the tool being built.
	ToolID string

	// Diagnostic describes the failure.
	Diagnostic string

	// Line is the 1-based line number where the error occurred.
	// Zero indicates the line is unknown.
	Line int

	// Column is the 1-based column number where the error occurred.
	// Zero indicates the column is unknown.
	Column int

	// Err is the underlying error, if any.
	Err error
}

// Error returns the error message, including line and column if available.
func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("compile %s: %s (line %d, col %d)", e.ToolID, e.Diagnostic, e.Line, e.Column)
	}
	return fmt.Sprintf("compile %s: %s", e.ToolID, e.Diagnostic)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches the target.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}

// CircularDependencyError reports the full invocation chain that would
// re-enter a tool, ending with the repeated tool ID.
type CircularDependencyError struct {
	Chain []string
}

// Error returns the error message.
func (e *CircularDependencyError) Error() string {
	return "circular dependency detected: " + strings.Join(e.Chain, " -> ")
}

// Is reports whether this error matches the target.
func (e *CircularDependencyError) Is(target error) bool {
	return target == ErrCircularDependency
}

// TimeoutError reports a tool that exceeded its time budget.
type TimeoutError struct {
	ToolID string
	Budget time.Duration
}

// Error returns the error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %v", e.ToolID, e.Budget)
}

// Is reports whether this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrExecutionTimeout
}

// ExecutionError wraps a runtime fault raised while running a tool.
type ExecutionError struct {
	ToolID string
	Cause  error
}

// Error returns the error message.
func (e *ExecutionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("tool %s failed", e.ToolID)
	}
	return fmt.Sprintf("tool %s failed: %v", e.ToolID, e.Cause)
}

// Unwrap returns the cause for use with errors.Is and errors.As.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}
