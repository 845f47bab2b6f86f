package normalize

import (
	"github.com/gnuthought/openshift-provision/pkg/listmeta"
	"github.com/gnuthought/openshift-provision/pkg/resource"
	"github.com/gnuthought/openshift-provision/support/quantity"
)

func init() {
	register(normalizeLimitRange, "LimitRange")
	register(normalizeResourceQuota, "ResourceQuota", "ClusterResourceQuota")
}

func normalizeLimitRange(r resource.Resource, _ string) error {
	return eachMap(getMap(r, "spec"), "limits", func(limit map[string]interface{}) error {
		for _, field := range []string{"default", "defaultRequest", "max", "maxLimitRequestRatio", "min"} {
			if err := canonicalizeQuantities(getMap(limit, field)); err != nil {
				return err
			}
		}
		return nil
	})
}

func normalizeResourceQuota(r resource.Resource, _ string) error {
	hard := getMap(getMap(r, "spec"), "hard")
	if hard == nil {
		return nil
	}
	for _, name := range []string{"requests.cpu", "limits.cpu"} {
		if value, ok := hard[name]; ok {
			canonical, err := quantity.CPU(listmeta.KeyString(value))
			if err != nil {
				return err
			}
			hard[name] = canonical
		}
	}
	for _, name := range []string{"requests.memory", "limits.memory"} {
		if value, ok := hard[name]; ok {
			canonical, err := quantity.Memory(listmeta.KeyString(value))
			if err != nil {
				return err
			}
			hard[name] = canonical
		}
	}
	return nil
}
