// Package normalize rewrites resource definitions into a canonical form:
// server-managed fields are blanked, schema defaults are filled, quantities
// are canonicalized and sequences are tagged with their semantic shape. Two
// definitions describe the same resource exactly when their normalized forms
// are equal.
package normalize

import (
	"github.com/gnuthought/openshift-provision/pkg/listmeta"
	"github.com/gnuthought/openshift-provision/pkg/resource"
	"github.com/gnuthought/openshift-provision/support/overlay"
)

const lastAppliedAnnotation = "kubectl.kubernetes.io/last-applied-configuration"

// kindNormalizer applies the kind-specific rewrite. The namespace is the
// effective namespace of the reconciliation, used where a default references
// the resource's own namespace.
type kindNormalizer func(r resource.Resource, namespace string) error

// kinds is the dispatch table. It is populated once at init and never
// mutated afterwards.
var kinds = map[string]kindNormalizer{}

func register(fn kindNormalizer, names ...string) {
	for _, name := range names {
		kinds[name] = fn
	}
}

// Normalize returns a canonicalized deep copy of r. The input is never
// mutated. Unknown kinds receive only the common metadata mask.
func Normalize(r resource.Resource, namespace string) (resource.Resource, error) {
	out := r.DeepCopy()
	if err := commonMask(out); err != nil {
		return nil, err
	}
	if fn, ok := kinds[out.Kind()]; ok {
		if err := fn(out, namespace); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// commonMask blanks the metadata fields every API server populates.
func commonMask(r resource.Resource) error {
	err := overlay.Apply(r, map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": map[string]interface{}{
				lastAppliedAnnotation: "",
			},
			"creationTimestamp": "",
			"generation":        0,
			"namespace":         "",
			"resourceVersion":   "",
			"selfLink":          "",
			"uid":               "",
		},
	}, true)
	if err != nil {
		return err
	}
	spec, ok := r["spec"].(map[string]interface{})
	if !ok {
		return nil
	}
	if template, ok := spec["template"].(map[string]interface{}); ok {
		err := overlay.Apply(template, map[string]interface{}{
			"metadata": map[string]interface{}{
				"creationTimestamp": "",
			},
		}, true)
		if err != nil {
			return err
		}
		spec["templateGeneration"] = 0
	}
	return nil
}

// ensureMap returns m[key] as a mapping, creating it when absent.
func ensureMap(m map[string]interface{}, key string) map[string]interface{} {
	if existing, ok := m[key].(map[string]interface{}); ok {
		return existing
	}
	created := map[string]interface{}{}
	m[key] = created
	return created
}

// getMap returns m[key] as a mapping, or nil when absent or mistyped.
func getMap(m map[string]interface{}, key string) map[string]interface{} {
	nested, _ := m[key].(map[string]interface{})
	return nested
}

// eachMap applies fn to every mapping element of the sequence at m[key],
// tolerating tagged lists and ignoring anything else.
func eachMap(m map[string]interface{}, key string, fn func(map[string]interface{}) error) error {
	items, ok := listmeta.Items(m[key])
	if !ok {
		return nil
	}
	for _, item := range items {
		element, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if err := fn(element); err != nil {
			return err
		}
	}
	return nil
}

// setAnnotation writes an annotation, creating the annotations mapping when
// needed.
func setAnnotation(r resource.Resource, name, value string) {
	metadata := ensureMap(r, "metadata")
	annotations := ensureMap(metadata, "annotations")
	annotations[name] = value
}

// tagSet replaces the sequence at m[key] with a set-tagged list. Absent keys
// are left alone.
func tagSet(m map[string]interface{}, key string) {
	if items, ok := listmeta.Items(m[key]); ok {
		m[key] = listmeta.NewSet(items)
	}
}

// tagKeyed replaces the sequence at m[key] with a list keyed by the given
// attribute. Absent keys are left alone.
func tagKeyed(m map[string]interface{}, key, keyAttribute string) {
	if items, ok := listmeta.Items(m[key]); ok {
		m[key] = listmeta.NewKeyed(keyAttribute, items)
	}
}
