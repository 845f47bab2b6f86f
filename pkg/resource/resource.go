// Package resource models Kubernetes and OpenShift resource definitions as
// JSON-shaped document trees and loads them from YAML streams.
package resource

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/gnuthought/openshift-provision/support/overlay"
)

// Resource is one resource definition. Leaves are strings, numbers, booleans
// and nulls; interior nodes are mappings and sequences, exactly as decoded
// from JSON.
type Resource map[string]interface{}

// ValidationError indicates a resource definition missing a required field.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validate checks the fields every resource must carry.
func (r Resource) Validate() error {
	if r.Kind() == "" {
		return &ValidationError{Reason: "resource must define kind"}
	}
	if _, ok := r["metadata"].(map[string]interface{}); !ok {
		return &ValidationError{Reason: "resource must include metadata"}
	}
	if r.Name() == "" {
		return &ValidationError{Reason: "resource metadata must include name"}
	}
	return nil
}

func (r Resource) Kind() string {
	kind, _ := r["kind"].(string)
	return kind
}

// Metadata returns the metadata mapping, or nil when absent.
func (r Resource) Metadata() map[string]interface{} {
	metadata, _ := r["metadata"].(map[string]interface{})
	return metadata
}

func (r Resource) Name() string {
	name, _ := r.Metadata()["name"].(string)
	return name
}

func (r Resource) Namespace() string {
	namespace, _ := r.Metadata()["namespace"].(string)
	return namespace
}

// Annotations returns the metadata annotations mapping, or nil when absent.
func (r Resource) Annotations() map[string]interface{} {
	annotations, _ := r.Metadata()["annotations"].(map[string]interface{})
	return annotations
}

// DeepCopy returns a copy sharing no nodes with the original.
func (r Resource) DeepCopy() Resource {
	if r == nil {
		return nil
	}
	return Resource(overlay.Copy(map[string]interface{}(r)).(map[string]interface{}))
}

// ToJSON serializes the resource. Tagged list nodes marshal as their items.
func (r Resource) ToJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(r))
}

// FromJSON decodes a single resource document from JSON or YAML.
func FromJSON(data []byte) (Resource, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse resource definition: %w", err)
	}
	return Resource(doc), nil
}
