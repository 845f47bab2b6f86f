package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gnuthought/openshift-provision/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	var commitOnly bool
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Prints openshift-provision version",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			if commitOnly {
				fmt.Printf("%s\n", version.GetRevision())
				return
			}
			fmt.Printf("%s\n", version.String())
		},
	}
	cmd.Flags().BoolVar(&commitOnly, "commit-only", commitOnly, "Output only the code commit")
	return cmd
}
