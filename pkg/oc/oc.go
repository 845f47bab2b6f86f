// Package oc wraps the delegated oc/kubectl executable. Every cluster read
// and mutation in this repository flows through the Client here; nothing
// talks to the API server directly.
package oc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/gnuthought/openshift-provision/pkg/resource"
)

// Connection carries the options forwarded to every invocation.
type Connection struct {
	// Command is the executable, optionally with leading arguments
	// ("oc", "kubectl", "oc --context=dev"). Defaults to "oc".
	Command               string
	Server                string
	CertificateAuthority  string
	Token                 string
	InsecureSkipTLSVerify bool
}

// MutatorError reports a non-zero exit from the delegated executable.
type MutatorError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *MutatorError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %s", strings.Join(e.Args, " "), e.ExitCode, e.Stderr)
}

// Runner executes one command invocation. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, argv []string, stdin []byte) (exitCode int, stdout, stderr []byte, err error)
}

// CommandRecorder receives every argument vector the client executes.
// Satisfied by *changelog.Recorder, which strips connection options before
// writing.
type CommandRecorder interface {
	RecordCommand(argv []string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, argv []string, stdin []byte) (int, []byte, []byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), stdout.Bytes(), stderr.Bytes(), nil
		}
		return -1, stdout.Bytes(), stderr.Bytes(), err
	}
	return 0, stdout.Bytes(), stderr.Bytes(), nil
}

// Client is the narrow facade over the delegated CLI.
type Client struct {
	command []string
	options []string
	token   string
	log     logr.Logger

	runner   Runner
	fs       afero.Fs
	recorder CommandRecorder
}

// NewClient builds a Client from connection options.
func NewClient(conn Connection, log logr.Logger) *Client {
	command := strings.Fields(conn.Command)
	if len(command) == 0 {
		command = []string{"oc"}
	}
	var options []string
	if conn.Server != "" {
		options = append(options, "--server="+conn.Server)
	}
	if conn.CertificateAuthority != "" {
		options = append(options, "--certificate-authority="+conn.CertificateAuthority)
	}
	if conn.Token != "" {
		options = append(options, "--token="+conn.Token)
	}
	if conn.InsecureSkipTLSVerify {
		options = append(options, "--insecure-skip-tls-verify=true")
	}
	return &Client{
		command: command,
		options: options,
		token:   conn.Token,
		log:     log,
		runner:  execRunner{},
		fs:      afero.NewOsFs(),
	}
}

// WithRunner substitutes the command runner. Intended for tests.
func (c *Client) WithRunner(runner Runner) *Client {
	c.runner = runner
	return c
}

// WithFs substitutes the filesystem used for scratch files. Intended for
// tests.
func (c *Client) WithFs(fs afero.Fs) *Client {
	c.fs = fs
	return c
}

// WithRecorder records every invocation to a change record.
func (c *Client) WithRecorder(recorder CommandRecorder) *Client {
	c.recorder = recorder
	return c
}

func (c *Client) argv(args []string) []string {
	argv := append([]string{}, c.command...)
	argv = append(argv, c.options...)
	return append(argv, args...)
}

// redacted renders an argument vector safe for logging: the bearer token
// never reaches log output.
func (c *Client) redacted(argv []string) []string {
	if c.token == "" {
		return argv
	}
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = strings.ReplaceAll(arg, c.token, "**********")
	}
	return out
}

func (c *Client) run(ctx context.Context, args []string, stdin []byte) (int, []byte, []byte, error) {
	argv := c.argv(args)
	c.log.V(1).Info("running", "command", c.redacted(argv))
	if c.recorder != nil {
		// The recorder strips connection options, token included, before
		// anything is written.
		if err := c.recorder.RecordCommand(argv); err != nil {
			return -1, nil, nil, err
		}
	}
	return c.runner.Run(ctx, argv, stdin)
}

// Run invokes the executable and fails on any non-zero exit.
func (c *Client) Run(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
	rc, stdout, stderr, err := c.run(ctx, args, stdin)
	if err != nil {
		return nil, err
	}
	if rc != 0 {
		return nil, &MutatorError{Args: c.redacted(c.argv(args)), ExitCode: rc, Stderr: string(stderr)}
	}
	return stdout, nil
}

// Get fetches the named resource as JSON. A non-zero exit means the resource
// is not present.
func (c *Client) Get(ctx context.Context, kind, name, namespace string) (resource.Resource, error) {
	args := []string{"get", kind, name, "-o", "json"}
	if namespace != "" {
		args = append(args, "-n", namespace)
	}
	rc, stdout, _, err := c.run(ctx, args, nil)
	if err != nil {
		return nil, err
	}
	if rc != 0 {
		return nil, nil
	}
	return resource.FromJSON(stdout)
}

// PatchLocal simulates a patch without touching the cluster: the observed
// resource is written to a scratch file and the executable applies the patch
// locally. The scratch file is removed on every exit path.
func (c *Client) PatchLocal(ctx context.Context, observed resource.Resource, patch []byte, patchType string) (resource.Resource, error) {
	observedJSON, err := observed.ToJSON()
	if err != nil {
		return nil, err
	}
	scratchName := filepath.Join(os.TempDir(), "openshift-provision-"+uuid.NewString()+".json")
	if err := afero.WriteFile(c.fs, scratchName, observedJSON, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write scratch file: %w", err)
	}
	defer c.fs.Remove(scratchName)

	stdout, err := c.Run(ctx, []string{
		"patch",
		"--local",
		"--filename=" + scratchName,
		"--patch=" + string(patch),
		"--type=" + patchType,
		"-o", "json",
	}, nil)
	if err != nil {
		return nil, err
	}
	return resource.FromJSON(stdout)
}
