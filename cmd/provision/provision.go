package provision

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gnuthought/openshift-provision/cmd/log"
	"github.com/gnuthought/openshift-provision/pkg/oc"
	engine "github.com/gnuthought/openshift-provision/pkg/provision"
	"github.com/gnuthought/openshift-provision/pkg/resource"
	"github.com/gnuthought/openshift-provision/support/changelog"
)

// Options collects everything the provision command needs.
type Options struct {
	Action                string
	PatchType             string
	Namespace             string
	OcCmd                 string
	Server                string
	CertificateAuthority  string
	Token                 string
	InsecureSkipTLSVerify bool
	CheckMode             bool
	FailOnChange          bool
	GenerateResources     bool
	ManifestsDir          string
	ChangeRecord          string
	Filenames             []string
}

func NewCommand() *cobra.Command {
	opts := Options{
		Action:       "apply",
		PatchType:    "strategic",
		OcCmd:        "oc",
		ManifestsDir: "manifests",
	}

	cmd := &cobra.Command{
		Use:          "provision [flags] FILENAME...",
		Short:        "Provision OpenShift resources idempotently",
		SilenceUsage: true,
		Args:         cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Filenames = args
			return opts.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.Action, "action", opts.Action, "Action to perform: apply, create, replace, patch, delete or ignore")
	cmd.Flags().StringVar(&opts.PatchType, "patch-type", opts.PatchType, "Patch type for the patch action: strategic, json or merge")
	cmd.Flags().StringVarP(&opts.Namespace, "namespace", "n", opts.Namespace, "Namespace for resources that do not carry one")
	cmd.Flags().StringVar(&opts.OcCmd, "oc-cmd", opts.OcCmd, "Delegated CLI executable, optionally with leading arguments")
	cmd.Flags().StringVar(&opts.Server, "server", opts.Server, "API server address passed to the delegated CLI")
	cmd.Flags().StringVar(&opts.CertificateAuthority, "certificate-authority", opts.CertificateAuthority, "Certificate authority file passed to the delegated CLI")
	cmd.Flags().StringVar(&opts.Token, "token", opts.Token, "Bearer token passed to the delegated CLI")
	cmd.Flags().BoolVar(&opts.InsecureSkipTLSVerify, "insecure-skip-tls-verify", opts.InsecureSkipTLSVerify, "Skip server certificate verification")
	cmd.Flags().BoolVar(&opts.CheckMode, "check", opts.CheckMode, "Report changes without mutating the cluster")
	cmd.Flags().BoolVar(&opts.FailOnChange, "fail-on-change", opts.FailOnChange, "Fail when any resource would change")
	cmd.Flags().BoolVar(&opts.GenerateResources, "generate-resources", opts.GenerateResources, "Write desired resources to the manifests directory instead of contacting the cluster")
	cmd.Flags().StringVar(&opts.ManifestsDir, "manifests-dir", opts.ManifestsDir, "Directory for generated manifests")
	cmd.Flags().StringVar(&opts.ChangeRecord, "change-record", opts.ChangeRecord, "Append a YAML change record to this file")

	return cmd
}

// Run provisions every resource in every input file, in order.
func (o *Options) Run(ctx context.Context) error {
	client := oc.NewClient(oc.Connection{
		Command:               o.OcCmd,
		Server:                o.Server,
		CertificateAuthority:  o.CertificateAuthority,
		Token:                 o.Token,
		InsecureSkipTLSVerify: o.InsecureSkipTLSVerify,
	}, log.Log)

	var recorder *changelog.Recorder
	if o.ChangeRecord != "" {
		recorder = changelog.NewRecorder(afero.NewOsFs(), o.ChangeRecord)
		client = client.WithRecorder(recorder)
	}
	provisioner := engine.NewProvisioner(client, log.Log).WithManifestsDir(o.ManifestsDir)

	for _, filename := range o.Filenames {
		resources, err := o.readResources(filename)
		if err != nil {
			return err
		}
		for _, desired := range resources {
			result, err := provisioner.Provision(ctx, engine.Request{
				Action:            o.Action,
				PatchType:         o.PatchType,
				Namespace:         o.Namespace,
				Resource:          desired,
				CheckMode:         o.CheckMode,
				FailOnChange:      o.FailOnChange,
				GenerateResources: o.GenerateResources,
			})
			if err != nil {
				return fmt.Errorf("failed to provision %s %s: %w", desired.Kind(), desired.Name(), err)
			}
			if result.Changed {
				log.Info("changed", "action", result.Action, "kind", desired.Kind(), "name", desired.Name())
				if err := recorder.RecordProvision(result.Action, result.Resource, result.Patch); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (o *Options) readResources(filename string) ([]resource.Resource, error) {
	var data []byte
	var err error
	if filename == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return resource.ParseStream(data)
}
