// Package registry tracks the named state categories whose bytes make up a
// snapshot. The host registers one category per independently serialized
// piece of game state; capture and restore then walk the categories in
// registration order, which is what keeps snapshot blobs positionally stable.
package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors for registration and restore.
var (
	// ErrSealed is returned by Register once the registry has been sealed.
	ErrSealed = errors.New("registry sealed")

	// ErrDuplicate is returned by Register for an already-registered name.
	ErrDuplicate = errors.New("category already registered")

	// ErrBlobCount is returned by RestoreAll when the blob count does not
	// match the registered categories, which means the snapshot was taken
	// under a different registration set.
	ErrBlobCount = errors.New("blob count mismatch")
)

// Category is one named piece of game state. Capture serializes the current
// state; Restore replaces the current state with a previously captured blob.
// Both run on the simulation goroutine.
type Category struct {
	Name    string
	Capture func() ([]byte, error)
	Restore func([]byte) error
}

// CategoryError wraps a capture or restore failure with the category that
// raised it.
type CategoryError struct {
	// Name is the failing category.
	Name string
	// Op is the operation that failed ("capture", "restore").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CategoryError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CategoryError) Unwrap() error {
	return e.Err
}

// Registry holds the registered categories in registration order. Once the
// first snapshot is taken the set is sealed: changing it afterwards would
// silently misalign every retained snapshot.
type Registry struct {
	cats   []Category
	byName map[string]int
	sealed bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register adds a category. Registration order is capture order.
func (r *Registry) Register(cat Category) error {
	if r.sealed {
		return fmt.Errorf("register %q: %w", cat.Name, ErrSealed)
	}
	if cat.Name == "" {
		return errors.New("register: category name is empty")
	}
	if cat.Capture == nil || cat.Restore == nil {
		return fmt.Errorf("register %q: capture and restore must both be set", cat.Name)
	}
	if _, ok := r.byName[cat.Name]; ok {
		return fmt.Errorf("register %q: %w", cat.Name, ErrDuplicate)
	}
	r.byName[cat.Name] = len(r.cats)
	r.cats = append(r.cats, cat)
	return nil
}

// Seal freezes the category set. Idempotent.
func (r *Registry) Seal() { r.sealed = true }

// Sealed reports whether the category set is frozen.
func (r *Registry) Sealed() bool { return r.sealed }

// CaptureAll serializes every category in registration order.
func (r *Registry) CaptureAll() ([][]byte, error) {
	blobs := make([][]byte, len(r.cats))
	for i, cat := range r.cats {
		b, err := cat.Capture()
		if err != nil {
			return nil, &CategoryError{Name: cat.Name, Op: "capture", Err: err}
		}
		blobs[i] = b
	}
	return blobs, nil
}

// RestoreAll feeds each blob to its category's Restore, in registration
// order. It stops at the first failure; the simulation state is then
// undefined and the caller must treat the session as lost.
func (r *Registry) RestoreAll(blobs [][]byte) error {
	if len(blobs) != len(r.cats) {
		return fmt.Errorf("restore: got %d blobs for %d categories: %w", len(blobs), len(r.cats), ErrBlobCount)
	}
	for i, cat := range r.cats {
		if err := cat.Restore(blobs[i]); err != nil {
			return &CategoryError{Name: cat.Name, Op: "restore", Err: err}
		}
	}
	return nil
}

// Names returns the category names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.cats))
	for i, cat := range r.cats {
		names[i] = cat.Name
	}
	return names
}

// Len returns the number of registered categories.
func (r *Registry) Len() int { return len(r.cats) }
