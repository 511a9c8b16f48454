package slot

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotNotFound is returned by lookups for a name that was never
	// registered.
	ErrSlotNotFound = errors.New("slot: not found")

	// ErrDuplicateSlot reports two distinct declarations sharing one slot
	// name. This is a configuration error and fatal at startup.
	ErrDuplicateSlot = errors.New("slot: duplicate slot name")

	// ErrNilConstructor reports a declaration without a view constructor.
	ErrNilConstructor = errors.New("slot: nil view constructor")
)

// InitError wraps a view constructor failure. The registry stays unchanged
// when construction fails, so the same registration can be retried on a
// later navigation.
type InitError struct {
	Slot string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("slot %q: view initialization failed: %v", e.Slot, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ValidateDeclarations checks a declaration set for startup-fatal
// configuration errors: duplicate slot names, empty names or routes, and
// missing constructors.
func ValidateDeclarations(decls []Declaration) error {
	seen := make(map[string]struct{}, len(decls))
	for _, d := range decls {
		if d.Name == "" {
			return fmt.Errorf("slot: declaration for route %q has empty name", d.Route)
		}
		if d.Route == "" {
			return fmt.Errorf("slot %q: empty route pattern", d.Name)
		}
		if d.Build == nil {
			return fmt.Errorf("slot %q: %w", d.Name, ErrNilConstructor)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("slot %q: %w", d.Name, ErrDuplicateSlot)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}
