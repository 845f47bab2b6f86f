package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gnuthought/openshift-provision/cmd/provision"
	"github.com/gnuthought/openshift-provision/cmd/version"
)

func main() {
	cmd := &cobra.Command{
		Use:              "openshift-provision",
		Short:            "Provision OpenShift and Kubernetes resources idempotently",
		SilenceUsage:     true,
		TraverseChildren: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(1)
		},
	}

	cmd.AddCommand(provision.NewCommand())
	cmd.AddCommand(version.NewVersionCommand())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
