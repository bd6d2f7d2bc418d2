// pocketctl is the operator CLI for a running pocket keeper. Every
// command is a thin call against the keeper's admin API.
package main

import (
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var server string

	root := &cobra.Command{
		Use:          "pocketctl",
		Short:        "Control a running pocket keeper",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&server, "server", "http://localhost:8080", "keeper API base URL")

	client := func() *apiClient { return newAPIClient(server) }

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the registry and all pockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client().do(http.MethodGet, "/api/snapshot", nil)
		},
	}
	root.AddCommand(snapshotCmd)

	root.AddCommand(newRegistryCmd(client))
	root.AddCommand(newPocketCmd(client))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRegistryCmd(client func() *apiClient) *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the platform registry",
	}

	var operators []string
	initCmd := &cobra.Command{
		Use:   "init <owner>",
		Short: "Initialize the registry with an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(http.MethodPost, "/api/registry/init", map[string]interface{}{
				"owner":     args[0],
				"operators": operators,
			})
		},
	}
	initCmd.Flags().StringSliceVar(&operators, "operator", nil, "initial operator addresses (comma-separated)")
	registryCmd.AddCommand(initCmd)

	var caller string
	operatorsCmd := &cobra.Command{
		Use:   "operators <address>...",
		Short: "Replace the operator set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(http.MethodPut, "/api/registry/operators", map[string]interface{}{
				"caller":    caller,
				"operators": args,
			})
		},
	}
	operatorsCmd.PersistentFlags().StringVar(&caller, "caller", "", "acting owner address (required)")
	operatorsCmd.MarkPersistentFlagRequired("caller")
	registryCmd.AddCommand(operatorsCmd)

	var mintCaller string
	var disable bool
	mintCmd := &cobra.Command{
		Use:   "mint <address>",
		Short: "Whitelist a mint, or toggle one with --disable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"caller": mintCaller,
				"mint":   args[0],
			}
			if cmd.Flags().Changed("disable") {
				body["enabled"] = !disable
			}
			return client().do(http.MethodPost, "/api/registry/mints", body)
		},
	}
	mintCmd.Flags().StringVar(&mintCaller, "caller", "", "acting owner address (required)")
	mintCmd.MarkFlagRequired("caller")
	mintCmd.Flags().BoolVar(&disable, "disable", false, "disable instead of enable")
	registryCmd.AddCommand(mintCmd)

	return registryCmd
}
