package oc

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/gnuthought/openshift-provision/pkg/resource"
	"github.com/gnuthought/openshift-provision/support/changelog"
)

type fakeRunner struct {
	argv     [][]string
	stdin    [][]byte
	exitCode int
	stdout   []byte
	stderr   []byte
}

func (f *fakeRunner) Run(_ context.Context, argv []string, stdin []byte) (int, []byte, []byte, error) {
	f.argv = append(f.argv, argv)
	f.stdin = append(f.stdin, stdin)
	return f.exitCode, f.stdout, f.stderr, nil
}

func TestArgvConstruction(t *testing.T) {
	g := NewGomegaWithT(t)

	runner := &fakeRunner{stdout: []byte("{}")}
	client := NewClient(Connection{
		Command:               "kubectl",
		Server:                "https://api.example.com:6443",
		CertificateAuthority:  "/etc/ca.crt",
		Token:                 "sekret",
		InsecureSkipTLSVerify: true,
	}, logr.Discard()).WithRunner(runner)

	_, err := client.Run(context.Background(), []string{"apply", "-f", "-"}, []byte("{}"))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(runner.argv[0]).To(Equal([]string{
		"kubectl",
		"--server=https://api.example.com:6443",
		"--certificate-authority=/etc/ca.crt",
		"--token=sekret",
		"--insecure-skip-tls-verify=true",
		"apply", "-f", "-",
	}))
	g.Expect(runner.stdin[0]).To(Equal([]byte("{}")))
}

func TestCommandSplitsArguments(t *testing.T) {
	g := NewGomegaWithT(t)

	runner := &fakeRunner{stdout: []byte("{}")}
	client := NewClient(Connection{Command: "oc --context=dev"}, logr.Discard()).WithRunner(runner)

	_, err := client.Run(context.Background(), []string{"get", "projects"}, nil)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(runner.argv[0][:2]).To(Equal([]string{"oc", "--context=dev"}))
}

func TestRunSurfacesFailures(t *testing.T) {
	g := NewGomegaWithT(t)

	runner := &fakeRunner{exitCode: 1, stderr: []byte("forbidden")}
	client := NewClient(Connection{Token: "sekret"}, logr.Discard()).WithRunner(runner)

	_, err := client.Run(context.Background(), []string{"apply", "-f", "-"}, nil)
	var mutatorErr *MutatorError
	g.Expect(errors.As(err, &mutatorErr)).To(BeTrue())
	g.Expect(mutatorErr.ExitCode).To(Equal(1))
	g.Expect(mutatorErr.Stderr).To(Equal("forbidden"))
	// The token never appears in the error.
	g.Expect(mutatorErr.Error()).ToNot(ContainSubstring("sekret"))
}

func TestRunRecordsCommands(t *testing.T) {
	g := NewGomegaWithT(t)

	fs := afero.NewMemMapFs()
	recorder := changelog.NewRecorder(fs, "/tmp/change-record.yaml")
	runner := &fakeRunner{stdout: []byte("{}")}
	client := NewClient(Connection{
		Server: "https://api.example.com:6443",
		Token:  "sekret",
	}, logr.Discard()).WithRunner(runner).WithRecorder(recorder)

	_, err := client.Run(context.Background(), []string{"apply", "-f", "-"}, []byte("{}"))
	g.Expect(err).ToNot(HaveOccurred())

	// The full argv went to the runner, the stripped form to the record.
	g.Expect(runner.argv[0]).To(ContainElement("--token=sekret"))
	data, err := afero.ReadFile(fs, "/tmp/change-record.yaml")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(data)).To(ContainSubstring("- oc\n"))
	g.Expect(string(data)).To(ContainSubstring("- apply\n"))
	g.Expect(string(data)).ToNot(ContainSubstring("sekret"))
}

func TestGet(t *testing.T) {
	g := NewGomegaWithT(t)

	runner := &fakeRunner{stdout: []byte(`{"kind":"Service","metadata":{"name":"frontend"}}`)}
	client := NewClient(Connection{}, logr.Discard()).WithRunner(runner)

	observed, err := client.Get(context.Background(), "Service", "frontend", "proj")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(observed.Kind()).To(Equal("Service"))
	g.Expect(runner.argv[0]).To(Equal([]string{"oc", "get", "Service", "frontend", "-o", "json", "-n", "proj"}))
}

func TestGetNotFound(t *testing.T) {
	g := NewGomegaWithT(t)

	runner := &fakeRunner{exitCode: 1, stderr: []byte("not found")}
	client := NewClient(Connection{}, logr.Discard()).WithRunner(runner)

	observed, err := client.Get(context.Background(), "Service", "missing", "")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(observed).To(BeNil())
}

func TestPatchLocal(t *testing.T) {
	g := NewGomegaWithT(t)

	fs := afero.NewMemMapFs()
	runner := &fakeRunner{stdout: []byte(`{"kind":"ConfigMap","metadata":{"name":"settings"},"data":{"k":"new"}}`)}
	client := NewClient(Connection{}, logr.Discard()).WithRunner(runner).WithFs(fs)

	observed := resource.Resource{
		"kind":     "ConfigMap",
		"metadata": map[string]interface{}{"name": "settings"},
		"data":     map[string]interface{}{"k": "old"},
	}

	patched, err := client.PatchLocal(context.Background(), observed, []byte(`{"data":{"k":"new"}}`), "strategic")
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(patched["data"]).To(Equal(map[string]interface{}{"k": "new"}))

	argv := runner.argv[0]
	g.Expect(argv[1]).To(Equal("patch"))
	g.Expect(argv[2]).To(Equal("--local"))
	g.Expect(argv[5]).To(Equal("--type=strategic"))

	var scratchName string
	for _, arg := range argv {
		if strings.HasPrefix(arg, "--filename=") {
			scratchName = strings.TrimPrefix(arg, "--filename=")
		}
	}
	g.Expect(scratchName).ToNot(BeEmpty())

	// Scratch file held the observed resource and was removed afterwards.
	_, err = fs.Stat(scratchName)
	g.Expect(err).To(HaveOccurred())
}

func TestPatchLocalCleansUpOnFailure(t *testing.T) {
	g := NewGomegaWithT(t)

	fs := afero.NewMemMapFs()
	runner := &fakeRunner{exitCode: 1, stderr: []byte("cannot be patched")}
	client := NewClient(Connection{}, logr.Discard()).WithRunner(runner).WithFs(fs)

	observed := resource.Resource{
		"kind":     "ConfigMap",
		"metadata": map[string]interface{}{"name": "settings"},
	}

	_, err := client.PatchLocal(context.Background(), observed, []byte(`{}`), "merge")
	g.Expect(err).To(HaveOccurred())

	files := 0
	afero.Walk(fs, "/", func(_ string, info os.FileInfo, err error) error {
		if err == nil && info != nil && !info.IsDir() {
			files++
		}
		return nil
	})
	g.Expect(files).To(BeZero())
}
