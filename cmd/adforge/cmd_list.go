package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// listCmd lists all stored campaigns.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	st, _, err := buildReadOnlyApp()
	if err != nil {
		return err
	}
	defer st.Close()

	campaigns, err := st.ListCampaigns(context.Background())
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		fmt.Println("No campaigns.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAMPAIGN\tCOMPANY\tSTATUS\tVERSION\tUPDATED")
	for _, c := range campaigns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			c.CampaignID, c.Company, c.Status, c.Version,
			c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
