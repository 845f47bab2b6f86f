// Package changelog appends change records to a YAML stream so a provisioning
// run leaves an auditable trail of what it did.
package changelog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/gnuthought/openshift-provision/pkg/resource"
)

var connectionOpt = regexp.MustCompile(`^--([a-z-]+)=`)

// connectionOptNames are the CLI options stripped from recorded commands:
// they identify the cluster and credentials, not the change.
var connectionOptNames = map[string]bool{
	"as":                       true,
	"as-group":                 true,
	"certificate-authority":    true,
	"client-certificate":       true,
	"client-key":               true,
	"cluster":                  true,
	"config":                   true,
	"context":                  true,
	"insecure-skip-tls-verify": true,
	"kubeconfig":               true,
	"match-server-version":     true,
	"request-timeout":          true,
	"server":                   true,
	"token":                    true,
	"user":                     true,
}

// Recorder appends change documents to a single file. A nil Recorder is
// valid and records nothing.
type Recorder struct {
	fs   afero.Fs
	path string
}

// NewRecorder writes records to path through the given filesystem.
func NewRecorder(fs afero.Fs, path string) *Recorder {
	return &Recorder{fs: fs, path: path}
}

// RecordProvision appends one provisioning change. Secret bodies are never
// recorded; for other kinds the patch is preferred over the full resource.
func (r *Recorder) RecordProvision(action string, res resource.Resource, patch interface{}) error {
	if r == nil {
		return nil
	}
	change := map[string]interface{}{
		"action": action,
		"kind":   res.Kind(),
		"name":   res.Name(),
	}
	if namespace := res.Namespace(); namespace != "" {
		change["namespace"] = namespace
	}
	if res.Kind() != "Secret" {
		if plain := toPlain(patch); plain != nil {
			change["patch"] = plain
		} else {
			change["resource"] = toPlain(map[string]interface{}(res))
		}
	}
	return r.append(change)
}

// RecordCommand appends an arbitrary command invocation with connection
// options stripped.
func (r *Recorder) RecordCommand(argv []string) error {
	if r == nil {
		return nil
	}
	command := make([]string, 0, len(argv))
	for _, arg := range argv {
		if m := connectionOpt.FindStringSubmatch(arg); m != nil && connectionOptNames[m[1]] {
			continue
		}
		command = append(command, arg)
	}
	if len(command) > 0 && command[0] == "echo" {
		command = command[1:]
	}
	return r.append(map[string]interface{}{
		"action":  "command",
		"command": command,
	})
}

func (r *Recorder) append(change map[string]interface{}) error {
	out, err := yaml.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to serialize change record: %w", err)
	}
	fh, err := r.fs.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open change record: %w", err)
	}
	defer fh.Close()
	if _, err := fh.Write(append([]byte("---\n"), out...)); err != nil {
		return fmt.Errorf("failed to append change record: %w", err)
	}
	return nil
}

// toPlain round-trips a value through JSON so tagged lists and typed patch
// operations serialize as their wire form. Nil and empty values come back
// nil.
func toPlain(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var plain interface{}
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil
	}
	switch p := plain.(type) {
	case []interface{}:
		if len(p) == 0 {
			return nil
		}
	case map[string]interface{}:
		if len(p) == 0 {
			return nil
		}
	}
	return plain
}
