package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"adforge/internal/campaign"
)

var statusJSON bool

// statusCmd shows one campaign's progress and assets.
var statusCmd = &cobra.Command{
	Use:   "status <campaign-id>",
	Short: "Show campaign status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the full context as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, _, err := buildReadOnlyApp()
	if err != nil {
		return err
	}
	defer st.Close()

	cc, err := st.Load(context.Background(), args[0])
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cc)
	}

	fmt.Printf("Campaign:  %s\n", cc.CampaignID)
	fmt.Printf("Company:   %s\n", cc.Input.CompanyName)
	fmt.Printf("Status:    %s\n", cc.Status)
	fmt.Printf("Version:   %d\n", cc.Version)
	fmt.Printf("Progress:  %d%%\n", cc.ProgressPercent())
	fmt.Printf("Updated:   %s\n", cc.UpdatedAt.Format("2006-01-02 15:04:05"))
	if len(cc.CompletedStages) > 0 {
		fmt.Printf("Stages:    %v\n", cc.CompletedStages)
	}

	if cc.ContentStrategy != nil {
		fmt.Printf("\nStrategy: %q, %d post(s)\n", cc.ContentStrategy.Theme, len(cc.ContentStrategy.Posts))
		for _, post := range cc.ContentStrategy.Posts {
			line := fmt.Sprintf("  %s [%s]", post.PostID, post.Platform)
			if kind := post.VisualKind(); kind != "" {
				if asset, ok := cc.VisualAssets[post.PostID]; ok {
					if asset.Status == campaign.AssetStatusSuccess {
						line += fmt.Sprintf(" %s: %s", kind, asset.Ref)
						if asset.FromCache {
							line += " (cached)"
						}
					} else {
						line += fmt.Sprintf(" %s: ERROR: %s", kind, asset.Error)
					}
				} else {
					line += fmt.Sprintf(" %s: pending", kind)
				}
			}
			fmt.Println(line)
		}
	}

	if len(cc.GenerationHistory) > 0 {
		fmt.Printf("\nEvents (%d):\n", len(cc.GenerationHistory))
		events := append([]campaign.GenerationEvent(nil), cc.GenerationHistory...)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp.Before(events[j].Timestamp)
		})
		for _, ev := range events {
			line := fmt.Sprintf("  %s %s", ev.Timestamp.Format("15:04:05"), ev.Type)
			if ev.PostID != "" {
				line += " post=" + ev.PostID
			}
			fmt.Println(line)
		}
	}
	return nil
}
