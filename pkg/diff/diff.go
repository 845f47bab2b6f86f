// Package diff computes a JSON-patch style description of the difference
// between two normalized resource definitions. An empty patch means the two
// definitions describe the same resource.
package diff

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/gnuthought/openshift-provision/pkg/listmeta"
	"github.com/gnuthought/openshift-provision/pkg/resource"
)

// Operation is one patch step. Remove operations carry no value; test,
// replace and add always do.
type Operation struct {
	Op    string
	Path  string
	Value interface{}
}

func (o Operation) MarshalJSON() ([]byte, error) {
	doc := map[string]interface{}{
		"op":   o.Op,
		"path": o.Path,
	}
	if o.Op != "remove" {
		doc["value"] = o.Value
	}
	return json.Marshal(doc)
}

// Patch is an ordered sequence of operations transforming the observed
// definition into the desired one.
type Patch []Operation

func test(path string, value interface{}) Operation {
	return Operation{Op: "test", Path: path, Value: listmeta.Untag(value)}
}

func remove(path string) Operation {
	return Operation{Op: "remove", Path: path}
}

func replace(path string, value interface{}) Operation {
	return Operation{Op: "replace", Path: path, Value: listmeta.Untag(value)}
}

func add(path string, value interface{}) Operation {
	return Operation{Op: "add", Path: path, Value: listmeta.Untag(value)}
}

// escapeSegment applies JSON pointer escaping to one path segment.
func escapeSegment(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

func childPath(path, segment string) string {
	return path + "/" + escapeSegment(segment)
}

func indexPath(path string, i int) string {
	return path + "/" + strconv.Itoa(i)
}

// ComparisonFields names the top-level fields that participate in comparison
// for a kind. SecurityContextConstraints compares every top-level key of the
// desired definition.
func ComparisonFields(kind string, desired resource.Resource) []string {
	switch kind {
	case "ClusterRole", "Role":
		return []string{"metadata", "rules"}
	case "ClusterRoleBinding", "RoleBinding":
		return []string{"metadata", "roleRef", "subjects"}
	case "ConfigMap", "Secret":
		return []string{"metadata", "data"}
	case "Group":
		return []string{"metadata", "users"}
	case "Project":
		return []string{"metadata", "labels"}
	case "ServiceAccount":
		return []string{"metadata", "imagePullSecrets", "secrets"}
	case "Template":
		return []string{"metadata", "labels", "objects", "parameters"}
	case "SecurityContextConstraints":
		return sets.List(sets.KeySet(map[string]interface{}(desired)))
	case "ValidatingWebhookConfiguration", "MutatingWebhookConfiguration":
		return []string{"metadata", "webhooks"}
	default:
		return []string{"metadata", "spec"}
	}
}

// Diff produces the patch transforming observed into desired. Both inputs
// must already be normalized; the result is empty exactly when they are
// equivalent under the semantic list rules.
func Diff(kind string, observed, desired resource.Resource) Patch {
	var patch Patch
	for _, field := range ComparisonFields(kind, desired) {
		observedValue, inObserved := observed[field]
		desiredValue, inDesired := desired[field]
		path := "/" + escapeSegment(field)
		switch {
		case inObserved && !inDesired:
			patch = append(patch, test(path, observedValue), remove(path))
		case inDesired && !inObserved:
			patch = append(patch, add(path, desiredValue))
		case inObserved && inDesired:
			patch = append(patch, diffValues(path, observedValue, desiredValue)...)
		}
	}
	return patch
}

// Equal reports whether two values are equivalent under the diff rules.
func Equal(src, dst interface{}) bool {
	return len(diffValues("", src, dst)) == 0
}

func diffValues(path string, src, dst interface{}) Patch {
	srcMap, srcIsMap := src.(map[string]interface{})
	dstMap, dstIsMap := dst.(map[string]interface{})
	if srcIsMap && dstIsMap {
		return diffMaps(path, srcMap, dstMap)
	}

	srcItems, srcIsList := listmeta.Items(src)
	dstItems, dstIsList := listmeta.Items(dst)
	if srcIsList && dstIsList {
		return diffLists(path, src, dst, srcItems, dstItems)
	}

	if srcIsMap || srcIsList || dstIsMap || dstIsList {
		// Mismatched node kinds never compare equal.
		return Patch{test(path, src), replace(path, dst)}
	}
	if equalLeaf(src, dst) {
		return nil
	}
	return Patch{test(path, src), replace(path, dst)}
}

func diffMaps(path string, src, dst map[string]interface{}) Patch {
	var patch Patch
	for _, key := range sets.List(sets.KeySet(src).Union(sets.KeySet(dst))) {
		srcValue, inSrc := src[key]
		dstValue, inDst := dst[key]
		keyPath := childPath(path, key)
		switch {
		case inSrc && !inDst:
			patch = append(patch, test(keyPath, srcValue), remove(keyPath))
		case inDst && !inSrc:
			patch = append(patch, add(keyPath, dstValue))
		default:
			patch = append(patch, diffValues(keyPath, srcValue, dstValue)...)
		}
	}
	return patch
}

func diffLists(path string, src, dst interface{}, srcItems, dstItems []interface{}) Patch {
	srcTag, _ := src.(*listmeta.List)
	dstTag, _ := dst.(*listmeta.List)
	shape := listShape(srcTag, dstTag)
	switch shape {
	case listmeta.Set:
		return diffSets(path, srcItems, dstItems)
	case listmeta.Keyed:
		var key string
		if srcTag != nil {
			key = srcTag.Key
		}
		if key == "" && dstTag != nil {
			key = dstTag.Key
		}
		return diffKeyed(path, key, srcItems, dstItems)
	default:
		return diffPositional(path, srcItems, dstItems)
	}
}

func listShape(srcTag, dstTag *listmeta.List) listmeta.Shape {
	if srcTag != nil {
		return srcTag.Shape
	}
	if dstTag != nil {
		return dstTag.Shape
	}
	return ""
}

func diffPositional(path string, srcItems, dstItems []interface{}) Patch {
	var patch Patch
	common := len(srcItems)
	if len(dstItems) < common {
		common = len(dstItems)
	}
	for i := 0; i < common; i++ {
		patch = append(patch, diffValues(indexPath(path, i), srcItems[i], dstItems[i])...)
	}
	for i := common; i < len(dstItems); i++ {
		patch = append(patch, add(indexPath(path, i), dstItems[i]))
	}
	for i := len(srcItems) - 1; i >= common; i-- {
		patch = append(patch, test(indexPath(path, i), srcItems[i]), remove(indexPath(path, i)))
	}
	return patch
}

func diffSets(path string, srcItems, dstItems []interface{}) Patch {
	var patch Patch
	matched := make([]bool, len(dstItems))
	removedIndexes := []int{}
	for i, srcItem := range srcItems {
		found := false
		for j, dstItem := range dstItems {
			if matched[j] {
				continue
			}
			if Equal(srcItem, dstItem) {
				matched[j] = true
				found = true
				break
			}
		}
		if !found {
			removedIndexes = append(removedIndexes, i)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(removedIndexes)))
	for _, i := range removedIndexes {
		patch = append(patch, test(indexPath(path, i), srcItems[i]), remove(indexPath(path, i)))
	}
	for j, dstItem := range dstItems {
		if !matched[j] {
			patch = append(patch, add(path+"/-", dstItem))
		}
	}
	return patch
}

func diffKeyed(path, key string, srcItems, dstItems []interface{}) Patch {
	var patch Patch
	dstByKey := keyIndex(key, dstItems)
	srcByKey := keyIndex(key, srcItems)

	// Recursion into shared keys comes first so its paths refer to positions
	// that removals have not yet shifted.
	for i, srcItem := range srcItems {
		itemKey, ok := itemKeyString(key, srcItem)
		if !ok {
			continue
		}
		if j, shared := dstByKey[itemKey]; shared {
			patch = append(patch, diffValues(indexPath(path, i), srcItem, dstItems[j])...)
		}
	}
	for i := len(srcItems) - 1; i >= 0; i-- {
		itemKey, ok := itemKeyString(key, srcItems[i])
		if ok {
			if _, shared := dstByKey[itemKey]; shared {
				continue
			}
		}
		patch = append(patch, test(indexPath(path, i), srcItems[i]), remove(indexPath(path, i)))
	}
	for _, dstItem := range dstItems {
		itemKey, ok := itemKeyString(key, dstItem)
		if ok {
			if _, shared := srcByKey[itemKey]; shared {
				continue
			}
		}
		patch = append(patch, add(path+"/-", dstItem))
	}
	return patch
}

func keyIndex(key string, items []interface{}) map[string]int {
	index := make(map[string]int, len(items))
	for i, item := range items {
		if itemKey, ok := itemKeyString(key, item); ok {
			index[itemKey] = i
		}
	}
	return index
}

func itemKeyString(key string, item interface{}) (string, bool) {
	element, ok := item.(map[string]interface{})
	if !ok {
		return "", false
	}
	value, ok := element[key]
	if !ok {
		return "", false
	}
	return listmeta.KeyString(value), true
}

// equalLeaf compares scalar values, treating all numeric encodings of the
// same number as equal.
func equalLeaf(a, b interface{}) bool {
	if af, aOK := asFloat(a); aOK {
		bf, bOK := asFloat(b)
		return bOK && af == bf
	}
	return a == b
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
