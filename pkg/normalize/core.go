package normalize

import (
	"github.com/gnuthought/openshift-provision/pkg/listmeta"
	"github.com/gnuthought/openshift-provision/pkg/resource"
	"github.com/gnuthought/openshift-provision/support/overlay"
)

const (
	servingCertSecretAnnotation   = "service.alpha.openshift.io/serving-cert-secret-name"
	servingCertSignedByAnnotation = "service.alpha.openshift.io/serving-cert-signed-by"
	hostGeneratedAnnotation       = "openshift.io/host.generated"
)

func init() {
	register(normalizeService, "Service")
	register(normalizeRoute, "Route")
	register(normalizePersistentVolume, "PersistentVolume")
	register(normalizePersistentVolumeClaim, "PersistentVolumeClaim")
	register(normalizeNetworkPolicy, "NetworkPolicy")
	register(normalizeImageStream, "ImageStream")
	register(normalizeHorizontalPodAutoscaler, "HorizontalPodAutoscaler")
}

func normalizeService(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"spec": map[string]interface{}{
			"sessionAffinity": "None",
			"type":            "ClusterIP",
		},
	}, false)
	if err != nil {
		return err
	}
	spec := getMap(r, "spec")
	err = eachMap(spec, "ports", func(port map[string]interface{}) error {
		if _, ok := port["protocol"]; !ok {
			port["protocol"] = "TCP"
		}
		return nil
	})
	if err != nil {
		return err
	}
	tagKeyed(spec, "ports", "port")

	if spec["sessionAffinity"] == "ClientIP" {
		err := overlay.Apply(spec, map[string]interface{}{
			"sessionAffinityConfig": map[string]interface{}{
				"clientIP": map[string]interface{}{
					"timeoutSeconds": 10800,
				},
			},
		}, false)
		if err != nil {
			return err
		}
	}

	if annotations := r.Annotations(); annotations != nil {
		if _, ok := annotations[servingCertSecretAnnotation]; ok {
			annotations[servingCertSignedByAnnotation] = ""
		}
	}
	r["status"] = nil
	return nil
}

func normalizeRoute(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"spec": map[string]interface{}{
			"to": map[string]interface{}{
				"weight": 100,
			},
			"wildcardPolicy": "None",
		},
	}, false)
	if err != nil {
		return err
	}
	r["status"] = nil

	// Generated hosts are server-assigned. When the host is blank or flagged
	// as generated, both the host and the flag collapse to their generated
	// form so either side compares clean.
	spec := getMap(r, "spec")
	host, _ := spec["host"].(string)
	generated, _ := r.Annotations()[hostGeneratedAnnotation].(string)
	if host == "" || generated == "true" {
		spec["host"] = ""
		setAnnotation(r, hostGeneratedAnnotation, "true")
	}
	return nil
}

func normalizePersistentVolume(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"metadata": map[string]interface{}{
			"finalizers": []interface{}{"kubernetes.io/pv-protection"},
		},
		"spec": map[string]interface{}{
			"persistentVolumeReclaimPolicy": "Retain",
		},
	}, false)
	if err != nil {
		return err
	}
	setAnnotation(r, "pv.kubernetes.io/bound-by-controller", "")
	getMap(r, "spec")["claimRef"] = ""
	r["status"] = nil
	return nil
}

func normalizePersistentVolumeClaim(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"metadata": map[string]interface{}{
			"finalizers": []interface{}{"kubernetes.io/pvc-protection"},
		},
	}, false)
	if err != nil {
		return err
	}
	setAnnotation(r, "pv.kubernetes.io/bind-completed", "")
	setAnnotation(r, "pv.kubernetes.io/bound-by-controller", "")
	setAnnotation(r, "volume.beta.kubernetes.io/storage-provisioner", "")
	return normalizeClaimBody(r)
}

// normalizeClaimBody holds the claim rules shared between
// PersistentVolumeClaim and StatefulSet volumeClaimTemplates.
func normalizeClaimBody(claim map[string]interface{}) error {
	spec := ensureMap(claim, "spec")
	if _, ok := spec["dataSource"]; !ok {
		spec["dataSource"] = nil
	}
	spec["volumeName"] = ""
	claim["status"] = nil
	return nil
}

func normalizeNetworkPolicy(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"spec": map[string]interface{}{
			"podSelector": map[string]interface{}{},
			"policyTypes": []interface{}{"Ingress"},
		},
	}, false)
	if err != nil {
		return err
	}
	spec := getMap(r, "spec")

	// Egress rules imply the Egress policy type even when undeclared.
	if egress, ok := listmeta.Items(spec["egress"]); ok && len(egress) > 0 {
		policyTypes, _ := listmeta.Items(spec["policyTypes"])
		found := false
		for _, policyType := range policyTypes {
			if policyType == "Egress" {
				found = true
				break
			}
		}
		if !found {
			spec["policyTypes"] = append(policyTypes, "Egress")
		}
	}
	tagSet(spec, "policyTypes")

	for _, direction := range []string{"ingress", "egress"} {
		err := eachMap(spec, direction, func(rule map[string]interface{}) error {
			err := eachMap(rule, "ports", func(port map[string]interface{}) error {
				if _, ok := port["protocol"]; !ok {
					port["protocol"] = "TCP"
				}
				return nil
			})
			if err != nil {
				return err
			}
			tagSet(rule, "ports")
			tagSet(rule, "from")
			tagSet(rule, "to")
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func normalizeImageStream(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"spec": map[string]interface{}{
			"dockerImageRepository": "",
			"lookupPolicy": map[string]interface{}{
				"local": false,
			},
		},
	}, false)
	if err != nil {
		return err
	}
	setAnnotation(r, "openshift.io/image.dockerRepositoryCheck", "")
	return eachMap(getMap(r, "spec"), "tags", func(tag map[string]interface{}) error {
		tag["generation"] = 0
		return overlay.Apply(tag, map[string]interface{}{
			"referencePolicy": map[string]interface{}{
				"type": "Source",
			},
		}, false)
	})
}

func normalizeHorizontalPodAutoscaler(r resource.Resource, _ string) error {
	setAnnotation(r, "autoscaling.alpha.kubernetes.io/conditions", "")
	r["status"] = nil
	return nil
}
