// Package adopt copies server-assigned dynamic values from an observed
// resource into the desired definition before differencing, so values the
// user never declared do not register as drift.
package adopt

import (
	"github.com/gnuthought/openshift-provision/pkg/listmeta"
	"github.com/gnuthought/openshift-provision/pkg/resource"
)

// Adopt mutates desired in place. Only a few kinds carry dynamic values.
func Adopt(observed, desired resource.Resource) {
	if observed == nil {
		return
	}
	switch desired.Kind() {
	case "PersistentVolumeClaim":
		copySpecValue(observed, desired, "storageClassName")
		copySpecValue(observed, desired, "volumeName")
	case "Service":
		copySpecValue(observed, desired, "clusterIP")
	case "ServiceAccount":
		adoptGeneratedSecrets(observed, desired, "imagePullSecrets", isDockercfgName)
		adoptGeneratedSecrets(observed, desired, "secrets", func(name string) bool {
			return isDockercfgName(name) || isTokenName(name)
		})
	}
}

func copySpecValue(observed, desired resource.Resource, field string) {
	observedSpec, _ := observed["spec"].(map[string]interface{})
	if observedSpec == nil {
		return
	}
	value, ok := observedSpec[field]
	if !ok {
		return
	}
	desiredSpec, _ := desired["spec"].(map[string]interface{})
	if desiredSpec == nil {
		desiredSpec = map[string]interface{}{}
		desired["spec"] = desiredSpec
	}
	if _, ok := desiredSpec[field]; !ok {
		desiredSpec[field] = value
	}
}

// adoptGeneratedSecrets appends observed secret references with
// server-generated names to the desired list, skipping names the user
// already declared.
func adoptGeneratedSecrets(observed, desired resource.Resource, field string, generated func(string) bool) {
	observedItems, _ := listmeta.Items(observed[field])
	if len(observedItems) == 0 {
		return
	}
	desiredItems, _ := listmeta.Items(desired[field])
	declared := map[string]bool{}
	for _, item := range desiredItems {
		if name, ok := referenceName(item); ok {
			declared[name] = true
		}
	}
	adopted := desiredItems
	for _, item := range observedItems {
		name, ok := referenceName(item)
		if !ok || declared[name] || !generated(name) {
			continue
		}
		adopted = append(adopted, item)
	}
	if len(adopted) > 0 {
		desired[field] = adopted
	}
}

func referenceName(item interface{}) (string, bool) {
	element, ok := item.(map[string]interface{})
	if !ok {
		return "", false
	}
	name, ok := element["name"].(string)
	return name, ok
}

// Generated pull secrets look like "default-dockercfg-ab1cd": the literal
// "-dockercfg-" sits at positions -16..-5 of the name. Token secrets place
// "-token-" at -12..-5. The positional check mirrors OpenShift's name
// generation exactly.
func isDockercfgName(name string) bool {
	return len(name) >= 16 && name[len(name)-16:len(name)-5] == "-dockercfg-"
}

func isTokenName(name string) bool {
	return len(name) >= 12 && name[len(name)-12:len(name)-5] == "-token-"
}
