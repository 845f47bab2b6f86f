// Package provision reconciles desired resource definitions against the
// cluster: fetch what is there, decide whether the desired definition differs
// once both sides are normalized, and mutate through the delegated CLI only
// when it does.
package provision

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/gnuthought/openshift-provision/pkg/adopt"
	"github.com/gnuthought/openshift-provision/pkg/diff"
	"github.com/gnuthought/openshift-provision/pkg/normalize"
	"github.com/gnuthought/openshift-provision/pkg/resource"
)

const lastAppliedAnnotation = "kubectl.kubernetes.io/last-applied-configuration"

// Actions understood by Provision.
const (
	ActionApply   = "apply"
	ActionCreate  = "create"
	ActionReplace = "replace"
	ActionPatch   = "patch"
	ActionDelete  = "delete"
	ActionIgnore  = "ignore"
)

// ClusterClient is the narrow view of the oc facade the reconciler needs.
type ClusterClient interface {
	Get(ctx context.Context, kind, name, namespace string) (resource.Resource, error)
	Run(ctx context.Context, args []string, stdin []byte) ([]byte, error)
	PatchLocal(ctx context.Context, observed resource.Resource, patch []byte, patchType string) (resource.Resource, error)
}

// Request is one reconciliation.
type Request struct {
	// Action defaults to apply.
	Action string
	// PatchType applies to the patch action only: strategic, json or merge.
	PatchType string
	// Namespace applies when the resource itself does not carry one.
	Namespace string
	Resource  resource.Resource
	// CheckMode reports what would change without mutating.
	CheckMode bool
	// FailOnChange turns any would-be mutation into a DriftError.
	FailOnChange bool
	// GenerateResources writes the desired definition to the manifests
	// directory instead of contacting the cluster.
	GenerateResources bool
}

// Result describes what the reconciliation did.
type Result struct {
	// Action is the action actually taken, which may differ from the
	// requested one (apply can become replace, replace can become create).
	Action  string
	Changed bool
	// Patch is nil when no difference was found.
	Patch diff.Patch
	// Resource is the observed definition when an existing resource needed
	// no change, and the desired definition otherwise (including ignore,
	// generate-only and deleting an absent resource).
	Resource resource.Resource
}

// NotFoundError reports a patch action against a resource that is not
// present.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cannot patch %s %s: resource not found", e.Kind, e.Name)
}

// DriftError reports a difference found under FailOnChange. The patch is the
// payload so callers can assert on exactly what drifted.
type DriftError struct {
	Action string
	Patch  diff.Patch
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("resource would change under action %s", e.Action)
}

// Provisioner reconciles one request at a time. It holds no per-request
// state.
type Provisioner struct {
	client       ClusterClient
	log          logr.Logger
	fs           afero.Fs
	manifestsDir string
}

// NewProvisioner builds a Provisioner around a cluster client.
func NewProvisioner(client ClusterClient, log logr.Logger) *Provisioner {
	return &Provisioner{
		client:       client,
		log:          log,
		fs:           afero.NewOsFs(),
		manifestsDir: "manifests",
	}
}

// WithFs substitutes the filesystem used for generated manifests. Intended
// for tests.
func (p *Provisioner) WithFs(fs afero.Fs) *Provisioner {
	p.fs = fs
	return p
}

// WithManifestsDir changes where generated manifests land.
func (p *Provisioner) WithManifestsDir(dir string) *Provisioner {
	p.manifestsDir = dir
	return p
}

// Provision runs one reconciliation.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Result, error) {
	action := req.Action
	if action == "" {
		action = ActionApply
	}
	patchType := req.PatchType
	if patchType == "" {
		patchType = "strategic"
	}

	desired := req.Resource
	if err := desired.Validate(); err != nil {
		return nil, err
	}
	namespace := desired.Namespace()
	if namespace == "" {
		namespace = req.Namespace
	}
	kind := desired.Kind()
	name := desired.Name()
	log := p.log.WithValues("kind", kind, "name", name, "namespace", namespace)

	if action == ActionIgnore {
		return &Result{Action: action, Resource: desired}, nil
	}

	// Generate-only mode never contacts the cluster.
	if req.GenerateResources {
		if err := p.writeManifest(desired, namespace); err != nil {
			return nil, err
		}
		return &Result{Action: action, Resource: desired}, nil
	}

	observed, err := p.client.Get(ctx, kind, name, namespace)
	if err != nil {
		return nil, err
	}

	// The server's bookkeeping fields come off before comparison and are
	// reattached if an apply goes back to the server.
	observedVersion, lastApplied := popServerBookkeeping(observed)

	if observed != nil && (action == ActionApply || action == ActionReplace) {
		adopt.Adopt(observed, desired)
	}

	var patch diff.Patch
	saveConfig := false

	switch action {
	case ActionCreate:
		if observed != nil {
			return &Result{Action: action, Resource: observed}, nil
		}

	case ActionApply:
		if observed != nil {
			patch, err = p.diff(observed, desired, namespace)
			if err != nil {
				return nil, err
			}
			if len(patch) == 0 {
				return &Result{Action: action, Resource: observed}, nil
			}
			// When the cluster state has drifted from its own
			// last-applied configuration, a three-way apply cannot be
			// trusted to converge; replace and re-save the config.
			drifted, err := p.driftedFromLastApplied(observed, lastApplied, namespace)
			if err != nil {
				return nil, err
			}
			if drifted {
				action = ActionReplace
				saveConfig = true
			}
		}

	case ActionReplace:
		if observed == nil {
			action = ActionCreate
		} else {
			patch, err = p.diff(observed, desired, namespace)
			if err != nil {
				return nil, err
			}
			if len(patch) == 0 {
				return &Result{Action: ActionReplace, Resource: observed}, nil
			}
		}

	case ActionPatch:
		if observed == nil {
			return nil, &NotFoundError{Kind: kind, Name: name}
		}
		desiredJSON, err := desired.ToJSON()
		if err != nil {
			return nil, err
		}
		simulated, err := p.client.PatchLocal(ctx, observed, desiredJSON, patchType)
		if err != nil {
			return nil, err
		}
		patch, err = p.diff(observed, simulated, namespace)
		if err != nil {
			return nil, err
		}
		if len(patch) == 0 {
			return &Result{Action: action, Resource: observed}, nil
		}

	case ActionDelete:
		if observed == nil {
			return &Result{Action: action, Resource: desired}, nil
		}

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}

	if req.FailOnChange {
		return nil, &DriftError{Action: action, Patch: patch}
	}
	if req.CheckMode {
		log.Info("change detected (check mode)", "action", action)
		return &Result{Action: action, Changed: true, Patch: patch, Resource: desired}, nil
	}

	if err := p.mutate(ctx, action, desired, namespace, patchType, observedVersion, lastApplied, saveConfig); err != nil {
		return nil, err
	}
	log.Info("provisioned", "action", action)
	return &Result{Action: action, Changed: true, Patch: patch, Resource: desired}, nil
}

func (p *Provisioner) diff(observed, desired resource.Resource, namespace string) (diff.Patch, error) {
	normalizedObserved, err := normalize.Normalize(observed, namespace)
	if err != nil {
		return nil, err
	}
	normalizedDesired, err := normalize.Normalize(desired, namespace)
	if err != nil {
		return nil, err
	}
	return diff.Diff(desired.Kind(), normalizedObserved, normalizedDesired), nil
}

// driftedFromLastApplied reports whether the observed state no longer
// matches the configuration recorded by the previous apply. A missing
// record counts as drift.
func (p *Provisioner) driftedFromLastApplied(observed resource.Resource, lastApplied string, namespace string) (bool, error) {
	if lastApplied == "" {
		return true, nil
	}
	recorded, err := resource.FromJSON([]byte(lastApplied))
	if err != nil {
		return true, nil
	}
	patch, err := p.diff(observed, recorded, namespace)
	if err != nil {
		return false, err
	}
	return len(patch) > 0, nil
}

func (p *Provisioner) mutate(ctx context.Context, action string, desired resource.Resource, namespace, patchType, observedVersion, lastApplied string, saveConfig bool) error {
	if action == ActionDelete {
		args := []string{"delete", desired.Kind(), desired.Name()}
		if namespace != "" {
			args = append(args, "-n", namespace)
		}
		_, err := p.client.Run(ctx, args, nil)
		return err
	}

	payload := desired
	if action == ActionApply && (observedVersion != "" || lastApplied != "") {
		// Reattach the server's bookkeeping so its three-way merge sees
		// the same base it recorded.
		payload = desired.DeepCopy()
		metadata := payload.Metadata()
		if observedVersion != "" {
			metadata["resourceVersion"] = observedVersion
		}
		if lastApplied != "" {
			annotations, _ := metadata["annotations"].(map[string]interface{})
			if annotations == nil {
				annotations = map[string]interface{}{}
				metadata["annotations"] = annotations
			}
			annotations[lastAppliedAnnotation] = lastApplied
		}
	}
	payloadJSON, err := payload.ToJSON()
	if err != nil {
		return err
	}

	args := []string{action, "-f", "-"}
	if action == ActionPatch {
		args = append(args, "--patch="+string(payloadJSON), "--type="+patchType)
	}
	if saveConfig {
		args = append(args, "--save-config")
	}
	if namespace != "" {
		args = append(args, "-n", namespace)
	}
	_, err = p.client.Run(ctx, args, payloadJSON)
	return err
}

// popServerBookkeeping removes resourceVersion and the last-applied
// annotation from the observed resource, returning both.
func popServerBookkeeping(observed resource.Resource) (string, string) {
	if observed == nil {
		return "", ""
	}
	metadata := observed.Metadata()
	if metadata == nil {
		return "", ""
	}
	version, _ := metadata["resourceVersion"].(string)
	delete(metadata, "resourceVersion")
	var lastApplied string
	if annotations, ok := metadata["annotations"].(map[string]interface{}); ok {
		lastApplied, _ = annotations[lastAppliedAnnotation].(string)
		delete(annotations, lastAppliedAnnotation)
	}
	return version, lastApplied
}

// writeManifest serializes the desired definition under the manifests
// directory, named by scope, kind and name.
func (p *Provisioner) writeManifest(desired resource.Resource, namespace string) error {
	scope := namespace
	if scope == "" {
		scope = "cluster"
	}
	if err := p.fs.MkdirAll(p.manifestsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifests directory: %w", err)
	}
	out, err := desired.ToJSON()
	if err != nil {
		return err
	}
	path := filepath.Join(p.manifestsDir, fmt.Sprintf("%s_%s_%s.json", scope, desired.Kind(), desired.Name()))
	staging := path + ".tmp"
	if err := afero.WriteFile(p.fs, staging, out, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := p.fs.Rename(staging, path); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
