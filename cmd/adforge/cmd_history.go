package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var historyVersions bool

// historyCmd shows a campaign's message traffic or version history.
var historyCmd = &cobra.Command{
	Use:   "history <campaign-id>",
	Short: "Show campaign message history",
	Long: `Shows the bus messages recorded for a campaign, in delivery order.

With --versions, shows the persisted context versions instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyVersions, "versions", false, "Show context versions instead of messages")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, _, err := buildReadOnlyApp()
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()
	campaignID := args[0]

	if historyVersions {
		versions, err := st.ListVersions(ctx, campaignID)
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Printf("v%d  %s  status=%s  events=%d\n",
				v.Version, v.SavedAt.Format("2006-01-02 15:04:05"),
				v.Context.Status, len(v.Context.GenerationHistory))
		}
		return nil
	}

	msgs, err := st.MessageHistory(ctx, campaignID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No messages recorded.")
		return nil
	}
	for _, m := range msgs {
		fmt.Printf("%s  %-28s %s\n", m.SentAt.Format("15:04:05.000"), m.Type, m.Sender)
	}
	return nil
}
