package resource

import (
	"fmt"
	"regexp"
	"strings"

	"sigs.k8s.io/yaml"
)

var documentSeparator = regexp.MustCompile(`(?m)^---\s*$`)

// ParseStream splits a YAML stream into resource definitions. Documents of
// kind List are flattened into their items.
func ParseStream(data []byte) ([]Resource, error) {
	var resources []Resource
	for _, doc := range documentSeparator.Split(string(data), -1) {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		var parsed map[string]interface{}
		if err := yaml.Unmarshal([]byte(doc), &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse resource document: %w", err)
		}
		if parsed == nil {
			continue
		}
		r := Resource(parsed)
		if r.Kind() != "List" {
			resources = append(resources, r)
			continue
		}
		items, _ := r["items"].([]interface{})
		for i, item := range items {
			element, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("List item %d is not a resource definition", i)
			}
			resources = append(resources, Resource(element))
		}
	}
	return resources, nil
}
