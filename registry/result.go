package registry

import (
	"fmt"
	"strings"

	"github.com/zero-day-ai/modulekit/dependency"
)

// Op names a registry transition.
type Op string

const (
	OpEnable                 Op = "enable"
	OpDisable                Op = "disable"
	OpEnableWithDependencies Op = "enable_with_dependencies"
	OpDisableWithDependents  Op = "disable_with_dependents"
)

// method names the Registry method behind o, as used in error ops.
func (o Op) method() string {
	switch o {
	case OpEnable:
		return "Registry.Enable"
	case OpDisable:
		return "Registry.Disable"
	case OpEnableWithDependencies:
		return "Registry.EnableWithDependencies"
	default:
		return "Registry.DisableWithDependents"
	}
}

// enables reports the flag the operation writes.
func (o Op) enables() bool {
	return o == OpEnable || o == OpEnableWithDependencies
}

// Reason explains a Result. Validation reasons come from package dependency.
type Reason = dependency.Reason

const (
	ReasonOK                 = dependency.ReasonOK
	ReasonAlreadyEnabled     = dependency.ReasonAlreadyEnabled
	ReasonAlreadyDisabled    = dependency.ReasonAlreadyDisabled
	ReasonUnknownModule      = dependency.ReasonUnknownModule
	ReasonMissingDependency  = dependency.ReasonMissingDependency
	ReasonBlockedByDependent = dependency.ReasonBlockedByDependent

	// ReasonPersistFailed means validation passed but the store rejected the
	// write; the in-memory state was left as it was before the call.
	ReasonPersistFailed Reason = "persist_failed"

	// ReasonNotOpen means the registry has not been opened yet.
	ReasonNotOpen Reason = "not_open"
)

// Result is the outcome of a transition.
type Result struct {
	// OK is the boolean outcome. Idempotent no-ops are OK.
	OK     bool
	Op     Op
	Module string
	Reason Reason
	// Related holds the modules behind a refusal: the disabled dependencies
	// for missing_dependency, the enabled dependents for blocked_by_dependent.
	Related []string
	// Changed lists the modules whose flag actually flipped, in apply order.
	Changed []string
	// Err is set for unknown_module (a not_found *modulekit.ModuleError wrapping
	// modulekit.ErrUnknownModule), persist_failed and not_open.
	Err error
}

// Message renders a user-facing explanation of a refusal. It is empty for
// successful results.
func (r Result) Message() string {
	if r.OK {
		return ""
	}
	switch r.Reason {
	case ReasonMissingDependency:
		return fmt.Sprintf("module %s requires %s to be enabled first", r.Module, strings.Join(r.Related, ", "))
	case ReasonBlockedByDependent:
		return fmt.Sprintf("module %s depends on this module", strings.Join(r.Related, ", "))
	case ReasonUnknownModule:
		return fmt.Sprintf("module %s is not installed", r.Module)
	case ReasonPersistFailed:
		return fmt.Sprintf("could not save module settings for %s", r.Module)
	case ReasonNotOpen:
		return "module settings are still loading"
	default:
		return fmt.Sprintf("module %s could not be changed", r.Module)
	}
}
