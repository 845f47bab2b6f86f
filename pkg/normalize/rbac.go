package normalize

import (
	"github.com/gnuthought/openshift-provision/pkg/resource"
	"github.com/gnuthought/openshift-provision/support/overlay"
)

const rbacAPIGroup = "rbac.authorization.k8s.io"

func init() {
	register(normalizeRole, "Role", "ClusterRole")
	register(normalizeRoleBinding, "RoleBinding", "ClusterRoleBinding")
	register(normalizeSecurityContextConstraints, "SecurityContextConstraints")
}

func normalizeRole(r resource.Resource, _ string) error {
	return eachMap(r, "rules", func(rule map[string]interface{}) error {
		if restrictions, ok := rule["attributeRestrictions"]; ok && restrictions == nil {
			delete(rule, "attributeRestrictions")
		}
		for _, field := range []string{"apiGroups", "nonResourceURLs", "resourceNames", "resources", "verbs"} {
			tagSet(rule, field)
		}
		return nil
	})
}

func normalizeRoleBinding(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"roleRef": map[string]interface{}{
			"apiGroup": rbacAPIGroup,
			"kind":     "ClusterRole",
		},
	}, false)
	if err != nil {
		return err
	}
	err = eachMap(r, "subjects", func(subject map[string]interface{}) error {
		if subject["apiGroup"] == rbacAPIGroup {
			delete(subject, "apiGroup")
		}
		if subject["kind"] == "SystemGroup" {
			subject["kind"] = "Group"
		}
		return nil
	})
	if err != nil {
		return err
	}
	tagSet(r, "subjects")
	return nil
}

func normalizeSecurityContextConstraints(r resource.Resource, _ string) error {
	for _, field := range []string{
		"allowedCapabilities",
		"defaultAddCapabilities",
		"groups",
		"requiredDropCapabilities",
		"users",
		"volumes",
	} {
		if value, ok := r[field]; ok && value == nil {
			r[field] = []interface{}{}
		}
		tagSet(map[string]interface{}(r), field)
	}
	return nil
}
