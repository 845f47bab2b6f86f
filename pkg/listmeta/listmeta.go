// Package listmeta tags sequences in a normalized resource document with
// their semantic shape so the differ can choose the right comparison: plain
// slices are positional, Set lists are unordered membership, and Keyed lists
// match elements by a natural key attribute.
package listmeta

import (
	"encoding/json"
	"strconv"

	"github.com/gnuthought/openshift-provision/support/overlay"
)

// Shape names how a tagged sequence is compared.
type Shape string

const (
	Set   Shape = "set"
	Keyed Shape = "keyed"
)

// List is a tagged sequence. It marshals as its items alone, so the tag never
// reaches serialized output.
type List struct {
	Shape Shape
	// Key is the natural-key attribute of Keyed lists.
	Key   string
	Items []interface{}

	index map[string]int
}

// NewSet tags items as an unordered membership list.
func NewSet(items []interface{}) *List {
	return &List{Shape: Set, Items: items}
}

// NewKeyed tags items as a list matched by the named key attribute and
// precomputes the key lookup.
func NewKeyed(key string, items []interface{}) *List {
	l := &List{Shape: Keyed, Key: key, Items: items}
	l.reindex()
	return l
}

func (l *List) reindex() {
	l.index = make(map[string]int, len(l.Items))
	for i, item := range l.Items {
		element, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if kv, ok := element[l.Key]; ok {
			l.index[KeyString(kv)] = i
		}
	}
}

// IndexOf returns the position of the element whose key attribute has the
// given canonical string form.
func (l *List) IndexOf(key string) (int, bool) {
	i, ok := l.index[key]
	return i, ok
}

// MarshalJSON strips the tag: only the items are serialized.
func (l *List) MarshalJSON() ([]byte, error) {
	if l.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.Items)
}

// DeepCopyValue satisfies overlay.Copier.
func (l *List) DeepCopyValue() interface{} {
	items := make([]interface{}, len(l.Items))
	for i, item := range l.Items {
		items[i] = overlay.Copy(item)
	}
	out := &List{Shape: l.Shape, Key: l.Key, Items: items}
	if l.Shape == Keyed {
		out.reindex()
	}
	return out
}

// Items returns the untagged element slice of v whether or not it has been
// tagged, and reports whether v was a sequence at all.
func Items(v interface{}) ([]interface{}, bool) {
	switch tv := v.(type) {
	case *List:
		return tv.Items, true
	case []interface{}:
		return tv, true
	}
	return nil, false
}

// Untag recursively replaces tagged lists with their plain item slices. The
// differ uses it so patch values serialize without sentinel types regardless
// of encoder.
func Untag(v interface{}) interface{} {
	switch tv := v.(type) {
	case *List:
		return Untag(tv.Items)
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, item := range tv {
			out[i] = Untag(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(tv))
		for k, item := range tv {
			out[k] = Untag(item)
		}
		return out
	default:
		return v
	}
}

// KeyString renders a natural-key value in a canonical form so numeric keys
// compare equal across int and float decodings.
func KeyString(v interface{}) string {
	switch kv := v.(type) {
	case string:
		return kv
	case bool:
		return strconv.FormatBool(kv)
	case int:
		return strconv.FormatInt(int64(kv), 10)
	case int64:
		return strconv.FormatInt(kv, 10)
	case float64:
		if kv == float64(int64(kv)) {
			return strconv.FormatInt(int64(kv), 10)
		}
		return strconv.FormatFloat(kv, 'f', -1, 64)
	case json.Number:
		return kv.String()
	default:
		b, err := json.Marshal(kv)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
