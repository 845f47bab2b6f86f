// Package overlay merges resource document trees. A patch is overlaid onto a
// target either filling in missing defaults or overwriting what is there, and
// a patch leaf may be a function computed from the node it lands on.
package overlay

import (
	"fmt"
)

// Func is a callable overlay. When a patch carries a Func at a key, the
// target's value at that key is replaced with the Func's result. The existing
// value is nil when the key is absent.
type Func func(existing interface{}) interface{}

// Copier is implemented by values that know how to deep copy themselves.
// Copy defers to it so tagged list nodes survive copying intact.
type Copier interface {
	DeepCopyValue() interface{}
}

// IncompatibleMergeError indicates a patch mapping landed on a target value
// that is not a mapping.
type IncompatibleMergeError struct {
	Key string
}

func (e *IncompatibleMergeError) Error() string {
	return fmt.Sprintf("cannot merge mapping into non-mapping value at key %q", e.Key)
}

// Apply overlays patch onto target in place. With overwrite set, patch
// scalars and sequences replace target values; without it they only fill
// absent keys. Patch mappings always recurse.
func Apply(target, patch map[string]interface{}, overwrite bool) error {
	for k, v := range patch {
		switch pv := v.(type) {
		case map[string]interface{}:
			existing, ok := target[k]
			if !ok {
				target[k] = Copy(pv)
				continue
			}
			existingMap, ok := existing.(map[string]interface{})
			if !ok {
				return &IncompatibleMergeError{Key: k}
			}
			if err := Apply(existingMap, pv, overwrite); err != nil {
				return err
			}
		case Func:
			target[k] = pv(target[k])
		default:
			if _, ok := target[k]; overwrite || !ok {
				target[k] = Copy(v)
			}
		}
	}
	return nil
}

// ApplyEach overlays patch onto every mapping element of list. The list may
// be nil, in which case there is nothing to do.
func ApplyEach(list interface{}, patch map[string]interface{}, overwrite bool) error {
	if list == nil {
		return nil
	}
	items, ok := list.([]interface{})
	if !ok {
		return fmt.Errorf("expected a sequence, got %T", list)
	}
	for i, item := range items {
		element, ok := item.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected a mapping at index %d, got %T", i, item)
		}
		if err := Apply(element, patch, overwrite); err != nil {
			return err
		}
	}
	return nil
}

// Copy returns a deep copy of a JSON-shaped document value.
func Copy(v interface{}) interface{} {
	switch tv := v.(type) {
	case Copier:
		return tv.DeepCopyValue()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(tv))
		for k, item := range tv {
			out[k] = Copy(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, item := range tv {
			out[i] = Copy(item)
		}
		return out
	default:
		return v
	}
}
