package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"adforge/internal/bus"
	"adforge/internal/campaign"
)

var (
	createCompany      string
	createIndustry     string
	createDescription  string
	createWebsite      string
	createTargetMarket string
	createGoals        []string
)

// createCmd starts a new campaign and runs the pipeline to completion.
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a campaign and generate its content",
	Long: `Creates a campaign from a business description and runs the full
pipeline: business analysis, content strategy, and visual generation.

The command blocks until the campaign reaches a terminal state and
prints progress as posts complete. Interrupting with Ctrl-C cancels
the campaign cleanly.

Example:
  adforge create --company "Driftwood Coffee" \
      --industry "specialty coffee" \
      --description "Small-batch roaster in Portland" \
      --goal "grow online subscriptions"`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createCompany, "company", "", "Company name (required)")
	createCmd.Flags().StringVar(&createIndustry, "industry", "", "Industry")
	createCmd.Flags().StringVar(&createDescription, "description", "", "Business description (required)")
	createCmd.Flags().StringVar(&createWebsite, "website", "", "Company website")
	createCmd.Flags().StringVar(&createTargetMarket, "target-market", "", "Target market")
	createCmd.Flags().StringArrayVar(&createGoals, "goal", nil, "Campaign goal (repeatable)")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	cc, err := app.orch.CreateCampaign(ctx, campaign.BusinessInput{
		CompanyName:  createCompany,
		Industry:     createIndustry,
		Description:  createDescription,
		Website:      createWebsite,
		TargetMarket: createTargetMarket,
		Goals:        createGoals,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Campaign %s created\n", cc.CampaignID)

	watch, stopWatch, err := app.orch.WatchProgress(cc.CampaignID)
	if err != nil {
		return err
	}
	defer stopWatch()

	// Ctrl-C cancels the campaign instead of abandoning it mid-flight.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			fmt.Println("\nInterrupted, cancelling campaign...")
			if err := app.orch.Cancel(context.Background(), cc.CampaignID); err != nil {
				return err
			}
			return fmt.Errorf("campaign %s cancelled", cc.CampaignID)

		case msg := <-watch:
			switch msg.Type {
			case bus.TypeProgressUpdate:
				if p, ok := msg.Payload.(bus.ProgressPayload); ok {
					fmt.Printf("  visuals: %d/%d\n", p.Completed, p.Total)
				}
			case bus.TypeVisualAssetGenerated:
				if p, ok := msg.Payload.(bus.AssetPayload); ok {
					fmt.Printf("  post %s: %s ready (%s)\n", p.Asset.PostID, p.Asset.Kind, p.Asset.Ref)
				}
			case bus.TypeVisualAssetFailed:
				if p, ok := msg.Payload.(bus.AssetPayload); ok {
					fmt.Printf("  post %s: %s FAILED: %s\n", p.Asset.PostID, p.Asset.Kind, p.Asset.Error)
				}
			case bus.TypeStageFailed:
				if p, ok := msg.Payload.(bus.StageFailedPayload); ok {
					fmt.Printf("Stage %s failed: %s\n", p.Stage, p.Reason)
				}
				return printFinalStatus(ctx, app, cc.CampaignID)
			case bus.TypeCampaignFinalized, bus.TypeCampaignCancelled:
				return printFinalStatus(ctx, app, cc.CampaignID)
			}
		}
	}
}

func printFinalStatus(ctx context.Context, app *app, campaignID string) error {
	report, err := app.orch.GetStatus(ctx, campaignID)
	if err != nil {
		return err
	}
	fmt.Printf("\nCampaign %s: %s (%d%%, version %d)\n",
		report.CampaignID, report.Status, report.ProgressPercent, report.Version)
	fmt.Printf("  posts: %d, assets: %d ok / %d failed\n",
		report.Posts, report.AssetsSucceeded, report.AssetsFailed)
	if report.Status == campaign.StatusFailed {
		return fmt.Errorf("campaign failed")
	}
	return nil
}
