package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newPocketCmd(client func() *apiClient) *cobra.Command {
	pocketCmd := &cobra.Command{
		Use:   "pocket",
		Short: "Manage pockets",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all pockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client().do(http.MethodGet, "/api/pockets", nil)
		},
	}
	pocketCmd.AddCommand(listCmd)

	getCmd := &cobra.Command{
		Use:   "get <address>",
		Short: "Show one pocket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(http.MethodGet, "/api/pockets/"+args[0], nil)
		},
	}
	pocketCmd.AddCommand(getCmd)

	pocketCmd.AddCommand(newPocketCreateCmd(client))

	var caller string
	var side string
	var amount uint64
	depositCmd := &cobra.Command{
		Use:   "deposit <address>",
		Short: "Fund one side of a pocket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(http.MethodPost, "/api/pockets/"+args[0]+"/deposit", map[string]interface{}{
				"caller": caller,
				"side":   side,
				"amount": amount,
			})
		},
	}
	depositCmd.Flags().StringVar(&caller, "caller", "", "pocket owner address (required)")
	depositCmd.MarkFlagRequired("caller")
	depositCmd.Flags().StringVar(&side, "side", "", "BASE or QUOTE (required)")
	depositCmd.MarkFlagRequired("side")
	depositCmd.Flags().Uint64Var(&amount, "amount", 0, "token amount in native units (required)")
	depositCmd.MarkFlagRequired("amount")
	pocketCmd.AddCommand(depositCmd)

	var withdrawCaller string
	withdrawCmd := &cobra.Command{
		Use:   "withdraw <address>",
		Short: "Close the pocket and return all remaining funds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(http.MethodPost, "/api/pockets/"+args[0]+"/withdraw", map[string]interface{}{
				"caller": withdrawCaller,
			})
		},
	}
	withdrawCmd.Flags().StringVar(&withdrawCaller, "caller", "", "pocket owner address (required)")
	withdrawCmd.MarkFlagRequired("caller")
	pocketCmd.AddCommand(withdrawCmd)

	var statusCaller string
	var status string
	statusCmd := &cobra.Command{
		Use:   "status <address>",
		Short: "Apply a lifecycle transition (ACTIVE, PAUSED, CLOSED)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(http.MethodPost, "/api/pockets/"+args[0]+"/status", map[string]interface{}{
				"caller": statusCaller,
				"status": status,
			})
		},
	}
	statusCmd.Flags().StringVar(&statusCaller, "caller", "", "pocket owner address (required)")
	statusCmd.MarkFlagRequired("caller")
	statusCmd.Flags().StringVar(&status, "set", "", "target status (required)")
	statusCmd.MarkFlagRequired("set")
	pocketCmd.AddCommand(statusCmd)

	var closeCaller string
	closeCmd := &cobra.Command{
		Use:   "close-accounts <address>",
		Short: "Release the vaults of a closed pocket and refund rent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(http.MethodPost, "/api/pockets/"+args[0]+"/close-accounts", map[string]interface{}{
				"caller": closeCaller,
			})
		},
	}
	closeCmd.Flags().StringVar(&closeCaller, "caller", "", "pocket owner address (required)")
	closeCmd.MarkFlagRequired("caller")
	pocketCmd.AddCommand(closeCmd)

	triggerCmd := &cobra.Command{
		Use:   "trigger <address>",
		Short: "Trigger a pocket immediately instead of waiting for the loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(http.MethodPost, "/api/pockets/"+args[0]+"/trigger", nil)
		},
	}
	pocketCmd.AddCommand(triggerCmd)

	return pocketCmd
}

func newPocketCreateCmd(client func() *apiClient) *cobra.Command {
	var (
		file        string
		id          string
		name        string
		owner       string
		side        string
		baseMint    string
		quoteMint   string
		market      string
		batchVolume uint64
		startAt     string
		frequency   time.Duration
	)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new pocket",
		Long: `Register a new pocket from flags, or from a JSON request body
with --file (use --file - to read stdin). Price and stop conditions can
only be set through the file form.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file != "" {
				body, err := readBodyFile(file)
				if err != nil {
					return err
				}
				return client().do(http.MethodPost, "/api/pockets", body)
			}

			for _, f := range []string{"id", "owner", "side", "base-mint", "quote-mint", "market", "batch-volume"} {
				if !cmd.Flags().Changed(f) {
					return fmt.Errorf("--%s is required unless --file is given", f)
				}
			}

			body := map[string]interface{}{
				"id":           id,
				"name":         name,
				"owner":        owner,
				"side":         side,
				"base_mint":    baseMint,
				"quote_mint":   quoteMint,
				"market":       market,
				"batch_volume": batchVolume,
				"frequency":    frequency,
			}
			if startAt != "" {
				t, err := time.Parse(time.RFC3339, startAt)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				body["start_at"] = t
			}
			return client().do(http.MethodPost, "/api/pockets", body)
		},
	}

	createCmd.Flags().StringVar(&file, "file", "", "JSON request body path, - for stdin")
	createCmd.Flags().StringVar(&id, "id", "", "pocket id, unique per owner")
	createCmd.Flags().StringVar(&name, "name", "", "display name")
	createCmd.Flags().StringVar(&owner, "owner", "", "owner address")
	createCmd.Flags().StringVar(&side, "side", "", "BUY or SELL")
	createCmd.Flags().StringVar(&baseMint, "base-mint", "", "base token mint address")
	createCmd.Flags().StringVar(&quoteMint, "quote-mint", "", "quote token mint address")
	createCmd.Flags().StringVar(&market, "market", "", "venue market address")
	createCmd.Flags().Uint64Var(&batchVolume, "batch-volume", 0, "amount spent per batch, native units")
	createCmd.Flags().StringVar(&startAt, "start", "", "first trigger time, RFC3339 (default now)")
	createCmd.Flags().DurationVar(&frequency, "frequency", time.Hour, "interval between batches")

	return createCmd
}

// readBodyFile parses a JSON request body from a file or stdin.
func readBodyFile(path string) (interface{}, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return body, nil
}
