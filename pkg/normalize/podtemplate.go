package normalize

import (
	"github.com/gnuthought/openshift-provision/pkg/listmeta"
	"github.com/gnuthought/openshift-provision/support/overlay"
	"github.com/gnuthought/openshift-provision/support/quantity"
)

// normalizePodTemplate applies pod defaulting wherever a pod template
// appears: Deployment, DeploymentConfig, DaemonSet, StatefulSet, Job and
// CronJob all share these rules.
func normalizePodTemplate(template map[string]interface{}) error {
	if template == nil {
		return nil
	}
	spec := getMap(template, "spec")
	if spec == nil {
		return nil
	}
	err := overlay.Apply(spec, map[string]interface{}{
		"dnsPolicy":                     "ClusterFirst",
		"restartPolicy":                 "Always",
		"schedulerName":                 "default-scheduler",
		"securityContext":               map[string]interface{}{},
		"terminationGracePeriodSeconds": 30,
	}, false)
	if err != nil {
		return err
	}

	// serviceAccount and serviceAccountName are aliases; mirror whichever
	// one is set.
	serviceAccount, hasServiceAccount := spec["serviceAccount"]
	serviceAccountName, hasServiceAccountName := spec["serviceAccountName"]
	if hasServiceAccount && !hasServiceAccountName {
		spec["serviceAccountName"] = serviceAccount
	} else if hasServiceAccountName && !hasServiceAccount {
		spec["serviceAccount"] = serviceAccountName
	}

	hostNetwork, _ := spec["hostNetwork"].(bool)
	for _, field := range []string{"containers", "initContainers"} {
		err := eachMap(spec, field, func(container map[string]interface{}) error {
			return normalizeContainer(container, hostNetwork)
		})
		if err != nil {
			return err
		}
		tagKeyed(spec, field, "name")
	}

	err = eachMap(spec, "volumes", func(volume map[string]interface{}) error {
		if configMap := getMap(volume, "configMap"); configMap != nil {
			if _, ok := configMap["defaultMode"]; !ok {
				configMap["defaultMode"] = 0o644
			}
		}
		if secret := getMap(volume, "secret"); secret != nil {
			if _, ok := secret["defaultMode"]; !ok {
				secret["defaultMode"] = 0o644
			}
		}
		if hostPath := getMap(volume, "hostPath"); hostPath != nil {
			if _, ok := hostPath["type"]; !ok {
				hostPath["type"] = ""
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	tagKeyed(spec, "volumes", "name")
	return nil
}

func normalizeContainer(container map[string]interface{}, hostNetwork bool) error {
	err := overlay.Apply(container, map[string]interface{}{
		"imagePullPolicy":          "IfNotPresent",
		"terminationMessagePath":   "/dev/termination-log",
		"terminationMessagePolicy": "File",
		"resources":                map[string]interface{}{},
		"securityContext": map[string]interface{}{
			"privileged": false,
			"procMount":  "Default",
		},
		"volumeMounts": []interface{}{},
	}, false)
	if err != nil {
		return err
	}

	err = eachMap(container, "env", func(env map[string]interface{}) error {
		_, hasValue := env["value"]
		_, hasValueFrom := env["valueFrom"]
		if !hasValue && !hasValueFrom {
			env["value"] = ""
		}
		return nil
	})
	if err != nil {
		return err
	}
	tagKeyed(container, "env", "name")

	err = eachMap(container, "ports", func(port map[string]interface{}) error {
		if _, ok := port["protocol"]; !ok {
			port["protocol"] = "TCP"
		}
		if _, ok := port["hostPort"]; hostNetwork && !ok {
			if containerPort, ok := port["containerPort"]; ok {
				port["hostPort"] = containerPort
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	tagKeyed(container, "ports", "containerPort")

	for _, probeField := range []string{"livenessProbe", "readinessProbe"} {
		probe := getMap(container, probeField)
		if probe == nil {
			continue
		}
		err := overlay.Apply(probe, map[string]interface{}{
			"initialDelaySeconds": 30,
			"periodSeconds":       10,
			"successThreshold":    1,
			"failureThreshold":    3,
		}, false)
		if err != nil {
			return err
		}
		if httpGet := getMap(probe, "httpGet"); httpGet != nil {
			if _, ok := httpGet["scheme"]; !ok {
				httpGet["scheme"] = "HTTP"
			}
		}
	}

	return canonicalizeComputeResources(getMap(container, "resources"))
}

// canonicalizeComputeResources rewrites cpu and memory quantities in a
// limits/requests style mapping to their canonical units.
func canonicalizeComputeResources(resources map[string]interface{}) error {
	if resources == nil {
		return nil
	}
	for _, section := range []string{"limits", "requests"} {
		if err := canonicalizeQuantities(getMap(resources, section)); err != nil {
			return err
		}
	}
	return nil
}

// canonicalizeQuantities rewrites the cpu and memory entries of a
// resourceName → quantity mapping.
func canonicalizeQuantities(quantities map[string]interface{}) error {
	if quantities == nil {
		return nil
	}
	if cpu, ok := quantities["cpu"]; ok {
		canonical, err := quantity.CPU(listmeta.KeyString(cpu))
		if err != nil {
			return err
		}
		quantities["cpu"] = canonical
	}
	if memory, ok := quantities["memory"]; ok {
		canonical, err := quantity.Memory(listmeta.KeyString(memory))
		if err != nil {
			return err
		}
		quantities["memory"] = canonical
	}
	return nil
}
