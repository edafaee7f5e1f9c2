package modulekit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// Sentinel errors for module registry error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrDuplicateModule indicates a descriptor id was registered twice.
	ErrDuplicateModule = errors.New("duplicate module")

	// ErrCyclicDependency indicates the registered dependency graph contains a cycle.
	ErrCyclicDependency = errors.New("cyclic module dependency")

	// ErrUnknownDependency indicates a descriptor depends on an id that was never registered.
	ErrUnknownDependency = errors.New("unknown module dependency")

	// ErrInvalidDescriptor indicates a descriptor failed validation.
	ErrInvalidDescriptor = errors.New("invalid module descriptor")

	// ErrUnknownModule indicates the requested module is not registered.
	ErrUnknownModule = errors.New("module not found")

	// ErrSealed indicates the registry no longer accepts registrations.
	ErrSealed = errors.New("registry is sealed")

	// ErrNotOpen indicates the registry has not been hydrated from its store yet.
	ErrNotOpen = errors.New("registry is not open")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreUnavailable indicates the activation store could not be read or written.
	ErrStoreUnavailable = errors.New("activation store unavailable")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a module was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors related to descriptor validation.
	KindValidation = "validation"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindStorage represents errors raised by an activation store backend.
	KindStorage = "storage"

	// KindInternal represents internal errors.
	KindInternal = "internal"
)

// ModuleError attaches the failing operation and an error category to a
// cause, for example a store failure during Registry.Open:
//
//	&ModuleError{Op: "Registry.Open", Kind: KindStorage, Err: ErrStoreUnavailable}
type ModuleError struct {
	// Op is the operation that failed (e.g., "Registry.Register", "Store.Save").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional),
	// typically the module id involved.
	Context map[string]any
}

// Error renders "modulekit: <op> [<kind>]: <cause> (key=value, ...)" with
// context keys sorted.
func (e *ModuleError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "modulekit: %s [%s]", e.Op, e.Kind)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *ModuleError) Unwrap() error { return e.Err }

// Is lets errors.Is match on category: a *ModuleError target matches when
// its Kind equals e.Kind and its Op is empty or equal. Wrapped causes are
// reached through Unwrap.
func (e *ModuleError) Is(target error) bool {
	t, ok := target.(*ModuleError)
	if !ok || t.Kind == "" {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// WithContext returns a copy of e with ctx merged over its context.
func (e *ModuleError) WithContext(ctx map[string]any) *ModuleError {
	out := *e
	out.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		out.Context[k] = v
	}
	for k, v := range ctx {
		out.Context[k] = v
	}
	return &out
}

// NewNotFoundError creates a new ModuleError with KindNotFound.
func NewNotFoundError(op string, err error) *ModuleError {
	return &ModuleError{Op: op, Kind: KindNotFound, Err: err}
}

// NewValidationError creates a new ModuleError with KindValidation.
func NewValidationError(op string, err error) *ModuleError {
	return &ModuleError{Op: op, Kind: KindValidation, Err: err}
}

// NewConfigurationError creates a new ModuleError with KindConfiguration.
func NewConfigurationError(op string, err error) *ModuleError {
	return &ModuleError{Op: op, Kind: KindConfiguration, Err: err}
}

// NewStorageError creates a new ModuleError with KindStorage.
func NewStorageError(op string, err error) *ModuleError {
	return &ModuleError{Op: op, Kind: KindStorage, Err: err}
}

// NewInternalError creates a new ModuleError with KindInternal.
func NewInternalError(op string, err error) *ModuleError {
	return &ModuleError{Op: op, Kind: KindInternal, Err: err}
}

// DuplicateModuleError reports a second registration of the same module id.
// It is fatal to startup.
type DuplicateModuleError struct {
	ID string
}

func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("modulekit: module %q already registered", e.ID)
}

// Unwrap returns ErrDuplicateModule.
func (e *DuplicateModuleError) Unwrap() error { return ErrDuplicateModule }

// CyclicDependencyError reports a dependency cycle found while sealing a registry.
// Cycle lists the module ids along the cycle, with the first id repeated at the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("modulekit: dependency cycle %s", strings.Join(e.Cycle, " -> "))
}

// Unwrap returns ErrCyclicDependency.
func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// UnknownDependencyError reports a dependency on a module id that was never registered.
type UnknownDependencyError struct {
	Module     string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("modulekit: module %q depends on unregistered module %q", e.Module, e.Dependency)
}

// Unwrap returns ErrUnknownDependency.
func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// If logger is nil, slog.Default() is used.
//
// Example usage:
//
//	defer modulekit.CloseWithLog(store, logger, "redis activation store")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
