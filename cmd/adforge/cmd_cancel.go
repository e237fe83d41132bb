package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adforge/internal/bus"
	"adforge/internal/orchestrator"
)

// cancelCmd cancels a campaign.
var cancelCmd = &cobra.Command{
	Use:   "cancel <campaign-id>",
	Short: "Cancel a campaign",
	Long: `Moves a campaign to the Cancelled terminal state. Completed stages
and already generated assets are preserved; nothing further runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	// Cancellation only touches the store and the audit trail; no provider
	// credentials are needed.
	st, cfg, err := buildReadOnlyApp()
	if err != nil {
		return err
	}
	defer st.Close()

	b := bus.New(bus.WithRecorder(st), bus.WithHistoryLimit(cfg.Storage.BusHistoryLimit))
	defer b.Close()
	orch := orchestrator.New(st, st, b, nil)

	if err := orch.Cancel(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Campaign %s cancelled\n", args[0])
	return nil
}
