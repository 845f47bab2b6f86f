package diff_test

import (
	"encoding/json"
	"testing"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/gomega"

	"github.com/gnuthought/openshift-provision/pkg/diff"
	"github.com/gnuthought/openshift-provision/pkg/listmeta"
	"github.com/gnuthought/openshift-provision/pkg/resource"
)

func TestDiffEqualResources(t *testing.T) {
	g := NewGomegaWithT(t)

	r := resource.Resource{
		"kind":     "ConfigMap",
		"metadata": map[string]interface{}{"name": "settings"},
		"data":     map[string]interface{}{"key": "value"},
	}

	g.Expect(diff.Diff("ConfigMap", r, r.DeepCopy())).To(BeEmpty())
}

func TestDiffLeafReplace(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "web"},
		"spec":     map[string]interface{}{"replicas": float64(3)},
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "web"},
		"spec":     map[string]interface{}{"replicas": float64(5)},
	}

	patch := diff.Diff("Deployment", observed, desired)
	g.Expect(patch).To(Equal(diff.Patch{
		{Op: "test", Path: "/spec/replicas", Value: float64(3)},
		{Op: "replace", Path: "/spec/replicas", Value: float64(5)},
	}))
}

func TestDiffNumericEncodings(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "web"},
		"spec":     map[string]interface{}{"revisionHistoryLimit": float64(10)},
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "web"},
		"spec":     map[string]interface{}{"revisionHistoryLimit": 10},
	}

	g.Expect(diff.Diff("Deployment", observed, desired)).To(BeEmpty())
}

func TestDiffMapKeys(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "settings"},
		"data": map[string]interface{}{
			"stale": "x",
			"kept":  "same",
		},
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "settings"},
		"data": map[string]interface{}{
			"kept":  "same",
			"fresh": "y",
		},
	}

	patch := diff.Diff("ConfigMap", observed, desired)
	g.Expect(patch).To(Equal(diff.Patch{
		{Op: "add", Path: "/data/fresh", Value: "y"},
		{Op: "test", Path: "/data/stale", Value: "x"},
		{Op: "remove", Path: "/data/stale"},
	}))
}

func TestDiffFieldPresence(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "robot"},
		"secrets":  []interface{}{map[string]interface{}{"name": "robot-token"}},
	}
	desired := resource.Resource{
		"metadata":         map[string]interface{}{"name": "robot"},
		"imagePullSecrets": []interface{}{map[string]interface{}{"name": "pull"}},
	}

	patch := diff.Diff("ServiceAccount", observed, desired)
	g.Expect(patch).To(Equal(diff.Patch{
		{Op: "add", Path: "/imagePullSecrets", Value: []interface{}{map[string]interface{}{"name": "pull"}}},
		{Op: "test", Path: "/secrets", Value: []interface{}{map[string]interface{}{"name": "robot-token"}}},
		{Op: "remove", Path: "/secrets"},
	}))
}

func TestDiffSetOrderInsensitive(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "admins"},
		"subjects": listmeta.NewSet([]interface{}{
			map[string]interface{}{"kind": "User", "name": "alice"},
			map[string]interface{}{"kind": "User", "name": "bob"},
		}),
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "admins"},
		"subjects": listmeta.NewSet([]interface{}{
			map[string]interface{}{"kind": "User", "name": "bob"},
			map[string]interface{}{"kind": "User", "name": "alice"},
		}),
	}

	g.Expect(diff.Diff("RoleBinding", observed, desired)).To(BeEmpty())
}

func TestDiffSetMembership(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "admins"},
		"subjects": listmeta.NewSet([]interface{}{
			map[string]interface{}{"kind": "User", "name": "alice"},
			map[string]interface{}{"kind": "User", "name": "mallory"},
		}),
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "admins"},
		"subjects": listmeta.NewSet([]interface{}{
			map[string]interface{}{"kind": "User", "name": "alice"},
			map[string]interface{}{"kind": "User", "name": "carol"},
		}),
	}

	patch := diff.Diff("RoleBinding", observed, desired)
	g.Expect(patch).To(Equal(diff.Patch{
		{Op: "test", Path: "/subjects/1", Value: map[string]interface{}{"kind": "User", "name": "mallory"}},
		{Op: "remove", Path: "/subjects/1"},
		{Op: "add", Path: "/subjects/-", Value: map[string]interface{}{"kind": "User", "name": "carol"}},
	}))
}

func TestDiffSetDuplicates(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "g"},
		"users":    listmeta.NewSet([]interface{}{"alice", "alice"}),
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "g"},
		"users":    listmeta.NewSet([]interface{}{"alice"}),
	}

	g.Expect(diff.Diff("Group", observed, desired)).ToNot(BeEmpty())
}

func TestDiffKeyed(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "frontend"},
		"spec": map[string]interface{}{
			"ports": listmeta.NewKeyed("port", []interface{}{
				map[string]interface{}{"port": float64(80), "targetPort": float64(8080)},
				map[string]interface{}{"port": float64(443), "targetPort": float64(8443)},
			}),
		},
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "frontend"},
		"spec": map[string]interface{}{
			"ports": listmeta.NewKeyed("port", []interface{}{
				map[string]interface{}{"port": float64(9090), "targetPort": float64(9090)},
				map[string]interface{}{"port": float64(80), "targetPort": float64(8081)},
			}),
		},
	}

	patch := diff.Diff("Service", observed, desired)
	g.Expect(patch).To(Equal(diff.Patch{
		{Op: "test", Path: "/spec/ports/0/targetPort", Value: float64(8080)},
		{Op: "replace", Path: "/spec/ports/0/targetPort", Value: float64(8081)},
		{Op: "test", Path: "/spec/ports/1", Value: map[string]interface{}{"port": float64(443), "targetPort": float64(8443)}},
		{Op: "remove", Path: "/spec/ports/1"},
		{Op: "add", Path: "/spec/ports/-", Value: map[string]interface{}{"port": float64(9090), "targetPort": float64(9090)}},
	}))
}

func TestDiffKeyedOrderInsensitive(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "frontend"},
		"spec": map[string]interface{}{
			"ports": listmeta.NewKeyed("port", []interface{}{
				map[string]interface{}{"port": float64(443)},
				map[string]interface{}{"port": float64(80)},
			}),
		},
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "frontend"},
		"spec": map[string]interface{}{
			"ports": listmeta.NewKeyed("port", []interface{}{
				map[string]interface{}{"port": float64(80)},
				map[string]interface{}{"port": float64(443)},
			}),
		},
	}

	g.Expect(diff.Diff("Service", observed, desired)).To(BeEmpty())
}

func TestDiffPositional(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "app"},
		"spec": map[string]interface{}{
			"tags": []interface{}{"v1", "v2", "v3"},
		},
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "app"},
		"spec": map[string]interface{}{
			"tags": []interface{}{"v1", "v4"},
		},
	}

	patch := diff.Diff("ImageStream", observed, desired)
	g.Expect(patch).To(Equal(diff.Patch{
		{Op: "test", Path: "/spec/tags/1", Value: "v2"},
		{Op: "replace", Path: "/spec/tags/1", Value: "v4"},
		{Op: "test", Path: "/spec/tags/2", Value: "v3"},
		{Op: "remove", Path: "/spec/tags/2"},
	}))
}

func TestDiffStripsListTags(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{"name": "binding"},
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{"name": "binding"},
		"subjects": listmeta.NewSet([]interface{}{
			map[string]interface{}{"kind": "Group", "name": "system:authenticated"},
		}),
	}

	patch := diff.Diff("RoleBinding", observed, desired)
	g.Expect(patch).To(HaveLen(1))
	g.Expect(patch[0].Value).To(Equal([]interface{}{
		map[string]interface{}{"kind": "Group", "name": "system:authenticated"},
	}))

	b, err := json.Marshal(patch)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(b)).To(Equal(`[{"op":"add","path":"/subjects","value":[{"kind":"Group","name":"system:authenticated"}]}]`))
}

func TestDiffAnnotationPathEscaping(t *testing.T) {
	g := NewGomegaWithT(t)

	observed := resource.Resource{
		"metadata": map[string]interface{}{
			"name":        "web",
			"annotations": map[string]interface{}{"example.com/team": "a"},
		},
		"spec": map[string]interface{}{},
	}
	desired := resource.Resource{
		"metadata": map[string]interface{}{
			"name":        "web",
			"annotations": map[string]interface{}{"example.com/team": "b"},
		},
		"spec": map[string]interface{}{},
	}

	patch := diff.Diff("Deployment", observed, desired)
	g.Expect(patch).To(Equal(diff.Patch{
		{Op: "test", Path: "/metadata/annotations/example.com~1team", Value: "a"},
		{Op: "replace", Path: "/metadata/annotations/example.com~1team", Value: "b"},
	}))
}

// Applying the emitted patch to the observed document must yield the desired
// one.
func TestDiffRoundTrip(t *testing.T) {
	testCases := []struct {
		name     string
		kind     string
		observed resource.Resource
		desired  resource.Resource
	}{
		{
			name: "map and leaf changes",
			kind: "ConfigMap",
			observed: resource.Resource{
				"metadata": map[string]interface{}{"name": "settings"},
				"data":     map[string]interface{}{"stale": "x", "kept": "old"},
			},
			desired: resource.Resource{
				"metadata": map[string]interface{}{"name": "settings"},
				"data":     map[string]interface{}{"kept": "new", "fresh": "y"},
			},
		},
		{
			name: "keyed list edits",
			kind: "Service",
			observed: resource.Resource{
				"metadata": map[string]interface{}{"name": "frontend"},
				"spec": map[string]interface{}{
					"ports": listmeta.NewKeyed("port", []interface{}{
						map[string]interface{}{"port": float64(80), "targetPort": float64(8080)},
						map[string]interface{}{"port": float64(443), "targetPort": float64(8443)},
					}),
				},
			},
			desired: resource.Resource{
				"metadata": map[string]interface{}{"name": "frontend"},
				"spec": map[string]interface{}{
					"ports": listmeta.NewKeyed("port", []interface{}{
						map[string]interface{}{"port": float64(80), "targetPort": float64(8081)},
						map[string]interface{}{"port": float64(9090), "targetPort": float64(9090)},
					}),
				},
			},
		},
		{
			name: "positional tail",
			kind: "ImageStream",
			observed: resource.Resource{
				"metadata": map[string]interface{}{"name": "app"},
				"spec":     map[string]interface{}{"tags": []interface{}{"v1", "v2", "v3"}},
			},
			desired: resource.Resource{
				"metadata": map[string]interface{}{"name": "app"},
				"spec":     map[string]interface{}{"tags": []interface{}{"v1", "v4"}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGomegaWithT(t)

			patchJSON, err := json.Marshal(diff.Diff(tc.kind, tc.observed, tc.desired))
			g.Expect(err).ToNot(HaveOccurred())
			decoded, err := jsonpatch.DecodePatch(patchJSON)
			g.Expect(err).ToNot(HaveOccurred())

			observedJSON, err := tc.observed.ToJSON()
			g.Expect(err).ToNot(HaveOccurred())
			patched, err := decoded.Apply(observedJSON)
			g.Expect(err).ToNot(HaveOccurred())

			var result, expected map[string]interface{}
			g.Expect(json.Unmarshal(patched, &result)).To(Succeed())
			desiredJSON, err := tc.desired.ToJSON()
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(json.Unmarshal(desiredJSON, &expected)).To(Succeed())
			g.Expect(cmp.Diff(expected, result)).To(BeEmpty())
		})
	}
}
