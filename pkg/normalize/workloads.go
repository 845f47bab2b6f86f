package normalize

import (
	"github.com/gnuthought/openshift-provision/pkg/listmeta"
	"github.com/gnuthought/openshift-provision/pkg/resource"
	"github.com/gnuthought/openshift-provision/support/overlay"
)

func init() {
	register(normalizeDeployment, "Deployment")
	register(normalizeDaemonSet, "DaemonSet")
	register(normalizeStatefulSet, "StatefulSet")
	register(normalizeDeploymentConfig, "DeploymentConfig")
	register(normalizeJob, "Job")
	register(normalizeCronJob, "CronJob")
	register(normalizeBuildConfig, "BuildConfig")
}

func normalizeDeployment(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"spec": map[string]interface{}{
			"progressDeadlineSeconds": 600,
			"revisionHistoryLimit":    10,
		},
	}, false)
	if err != nil {
		return err
	}
	setAnnotation(r, "deployment.kubernetes.io/revision", "")
	r["status"] = nil
	return normalizePodTemplate(getMap(getMap(r, "spec"), "template"))
}

func normalizeDaemonSet(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"spec": map[string]interface{}{
			"revisionHistoryLimit": 10,
		},
	}, false)
	if err != nil {
		return err
	}
	r["status"] = nil
	return normalizePodTemplate(getMap(getMap(r, "spec"), "template"))
}

func normalizeStatefulSet(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"spec": map[string]interface{}{
			"replicas":             1,
			"revisionHistoryLimit": 10,
		},
	}, false)
	if err != nil {
		return err
	}
	r["status"] = nil
	spec := getMap(r, "spec")
	err = eachMap(spec, "volumeClaimTemplates", func(claim map[string]interface{}) error {
		if metadata := getMap(claim, "metadata"); metadata != nil {
			metadata["creationTimestamp"] = ""
		}
		return normalizeClaimBody(claim)
	})
	if err != nil {
		return err
	}
	return normalizePodTemplate(getMap(spec, "template"))
}

func normalizeJob(r resource.Resource, _ string) error {
	r["status"] = nil
	return normalizePodTemplate(getMap(getMap(r, "spec"), "template"))
}

func normalizeCronJob(r resource.Resource, _ string) error {
	r["status"] = nil
	jobTemplate := getMap(getMap(r, "spec"), "jobTemplate")
	if jobTemplate == nil {
		return nil
	}
	if metadata := getMap(jobTemplate, "metadata"); metadata != nil {
		metadata["creationTimestamp"] = ""
	}
	return normalizePodTemplate(getMap(getMap(jobTemplate, "spec"), "template"))
}

func normalizeDeploymentConfig(r resource.Resource, namespace string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"spec": map[string]interface{}{
			"revisionHistoryLimit": 10,
			"strategy": map[string]interface{}{
				"activeDeadlineSeconds": 21600,
				"recreateParams": map[string]interface{}{
					"timeoutSeconds": 600,
				},
				"resources": map[string]interface{}{},
			},
			"test": false,
			"triggers": []interface{}{
				map[string]interface{}{"type": "ConfigChange"},
			},
		},
	}, false)
	if err != nil {
		return err
	}

	spec := getMap(r, "spec")

	// Containers named by an ImageChange trigger have their image managed by
	// the trigger once it fires, so the image never participates in
	// comparison.
	triggeredContainers := map[string]bool{}
	err = eachMap(spec, "triggers", func(trigger map[string]interface{}) error {
		if trigger["type"] != "ImageChange" {
			return nil
		}
		params := getMap(trigger, "imageChangeParams")
		if params == nil {
			return nil
		}
		from := ensureMap(params, "from")
		if _, ok := from["namespace"]; !ok {
			from["namespace"] = namespace
		}
		params["lastTriggeredImage"] = ""
		names, _ := listmeta.Items(params["containerNames"])
		for _, name := range names {
			if s, ok := name.(string); ok {
				triggeredContainers[s] = true
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	template := getMap(spec, "template")
	if template != nil {
		err := eachMap(getMap(template, "spec"), "containers", func(container map[string]interface{}) error {
			if name, ok := container["name"].(string); ok && triggeredContainers[name] {
				container["image"] = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return normalizePodTemplate(template)
}

func normalizeBuildConfig(r resource.Resource, _ string) error {
	err := overlay.Apply(r, map[string]interface{}{
		"spec": map[string]interface{}{
			"resources": map[string]interface{}{},
			"runPolicy": "Serial",
			"source": map[string]interface{}{
				"contextDir": "",
				"git": map[string]interface{}{
					"ref": "",
				},
			},
			"triggers": []interface{}{
				map[string]interface{}{"imageChange": map[string]interface{}{}},
			},
		},
	}, false)
	if err != nil {
		return err
	}
	setAnnotation(r, "template.alpha.openshift.io/wait-for-ready", "")

	strategy := getMap(getMap(r, "spec"), "strategy")
	for _, field := range []string{"sourceStrategy", "dockerStrategy", "customStrategy"} {
		substrategy := getMap(strategy, field)
		if substrategy == nil {
			continue
		}
		if from := getMap(substrategy, "from"); from != nil {
			if _, ok := from["namespace"]; !ok {
				from["namespace"] = ""
			}
		}
		err := eachMap(substrategy, "env", func(env map[string]interface{}) error {
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
		tagKeyed(substrategy, "env", "name")
	}
	return nil
}
