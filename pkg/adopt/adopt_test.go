package adopt

import (
	"testing"

	. "github.com/onsi/gomega"

	"github.com/gnuthought/openshift-provision/pkg/resource"
)

func TestAdoptService(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"kind":     "Service",
		"metadata": map[string]interface{}{"name": "frontend"},
		"spec":     map[string]interface{}{"clusterIP": "10.0.0.42"},
	}
	desired := resource.Resource{
		"kind":     "Service",
		"metadata": map[string]interface{}{"name": "frontend"},
		"spec":     map[string]interface{}{},
	}

	Adopt(observed, desired)
	g.Expect(desired["spec"].(map[string]interface{})["clusterIP"]).To(Equal("10.0.0.42"))
}

func TestAdoptDoesNotOverwrite(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"kind":     "Service",
		"metadata": map[string]interface{}{"name": "frontend"},
		"spec":     map[string]interface{}{"clusterIP": "10.0.0.42"},
	}
	desired := resource.Resource{
		"kind":     "Service",
		"metadata": map[string]interface{}{"name": "frontend"},
		"spec":     map[string]interface{}{"clusterIP": "None"},
	}

	Adopt(observed, desired)
	g.Expect(desired["spec"].(map[string]interface{})["clusterIP"]).To(Equal("None"))
}

func TestAdoptPersistentVolumeClaim(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"kind":     "PersistentVolumeClaim",
		"metadata": map[string]interface{}{"name": "data"},
		"spec": map[string]interface{}{
			"storageClassName": "gp2",
			"volumeName":       "pvc-5a0c",
		},
	}
	desired := resource.Resource{
		"kind":     "PersistentVolumeClaim",
		"metadata": map[string]interface{}{"name": "data"},
		"spec":     map[string]interface{}{"accessModes": []interface{}{"ReadWriteOnce"}},
	}

	Adopt(observed, desired)
	spec := desired["spec"].(map[string]interface{})
	g.Expect(spec["storageClassName"]).To(Equal("gp2"))
	g.Expect(spec["volumeName"]).To(Equal("pvc-5a0c"))
}

func TestAdoptServiceAccount(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"kind":     "ServiceAccount",
		"metadata": map[string]interface{}{"name": "robot"},
		"imagePullSecrets": []interface{}{
			map[string]interface{}{"name": "robot-dockercfg-ab1cd"},
			map[string]interface{}{"name": "user-declared"},
		},
		"secrets": []interface{}{
			map[string]interface{}{"name": "robot-dockercfg-ab1cd"},
			map[string]interface{}{"name": "robot-token-xy2zw"},
			map[string]interface{}{"name": "extra"},
		},
	}
	desired := resource.Resource{
		"kind":     "ServiceAccount",
		"metadata": map[string]interface{}{"name": "robot"},
		"imagePullSecrets": []interface{}{
			map[string]interface{}{"name": "user-declared"},
		},
	}

	Adopt(observed, desired)
	g.Expect(desired["imagePullSecrets"]).To(Equal([]interface{}{
		map[string]interface{}{"name": "user-declared"},
		map[string]interface{}{"name": "robot-dockercfg-ab1cd"},
	}))
	g.Expect(desired["secrets"]).To(Equal([]interface{}{
		map[string]interface{}{"name": "robot-dockercfg-ab1cd"},
		map[string]interface{}{"name": "robot-token-xy2zw"},
	}))
}

func TestAdoptNothingForOtherKinds(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"kind":     "ConfigMap",
		"metadata": map[string]interface{}{"name": "settings"},
		"data":     map[string]interface{}{"k": "v"},
	}
	desired := resource.Resource{
		"kind":     "ConfigMap",
		"metadata": map[string]interface{}{"name": "settings"},
	}

	Adopt(observed, desired)
	g.Expect(desired).ToNot(HaveKey("data"))

	Adopt(nil, desired)
}

func TestGeneratedNameMatching(t *testing.T) {
	testCases := []struct {
		name      string
		dockercfg bool
		token     bool
	}{
		{name: "default-dockercfg-ab1cd", dockercfg: true},
		{name: "builder-token-xy2zw", token: true},
		{name: "dockercfg", dockercfg: false},
		{name: "my-dockercfg-secret", dockercfg: false},
		{name: "token-abcde", token: false},
		{name: "x-token-ab1cd", token: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGomegaWithT(t)
			g.Expect(isDockercfgName(tc.name)).To(Equal(tc.dockercfg))
			g.Expect(isTokenName(tc.name)).To(Equal(tc.token))
		})
	}
}
