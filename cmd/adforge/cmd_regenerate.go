package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adforge/internal/campaign"
)

var regenerateForce bool

// regenerateCmd regenerates one post's visual asset.
var regenerateCmd = &cobra.Command{
	Use:   "regenerate <campaign-id> <post-id>",
	Short: "Regenerate one post's visual asset",
	Long: `Regenerates the visual asset for a single post. The campaign may
already be finalized; regeneration reopens only that post's entry and
records a new context version.

By default an identical request is answered from the generation cache.
Use --force to bypass the cache and call the provider again.`,
	Args: cobra.ExactArgs(2),
	RunE: runRegenerate,
}

func init() {
	regenerateCmd.Flags().BoolVar(&regenerateForce, "force", false, "Bypass the generation cache")
	rootCmd.AddCommand(regenerateCmd)
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	asset, err := app.orch.RegeneratePost(ctx, args[0], args[1], regenerateForce)
	if err != nil {
		return err
	}

	if asset.Status == campaign.AssetStatusError {
		return fmt.Errorf("regeneration failed: %s", asset.Error)
	}
	source := "generated"
	if asset.FromCache {
		source = "from cache"
	}
	fmt.Printf("post %s: %s ready (%s, %s)\n", asset.PostID, asset.Kind, asset.Ref, source)
	return nil
}
