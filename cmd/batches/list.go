// Package batches implements the command-line interface for inspecting
// review batches.
package batches

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/curation-engine/cmd/common"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/models"
)

const defaultListLimit = 100

// Command returns the batches command group.
func Command(debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Manage review batches",
	}
	cmd.AddCommand(newListCommand(debug))
	return cmd
}

func newListCommand(debug *bool) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List review batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewDeps(*debug)
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}
			defer deps.Close()

			repo := database.NewSyncRepository(deps.DB)
			batches, err := repo.ListBatches(cmd.Context(), database.BatchFilter{
				Status: models.BatchStatus(status),
				Limit:  defaultListLimit,
			})
			if err != nil {
				return fmt.Errorf("failed to list batches: %w", err)
			}

			if len(batches) == 0 {
				deps.Logger.Info("No batches found")
				return nil
			}

			renderTable(batches)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by batch status")
	return cmd
}

func renderTable(batches []*models.SyncBatch) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Status", "Website", "Created", "Expires"})
	for _, b := range batches {
		website := ""
		if b.WebsiteID != nil {
			website = *b.WebsiteID
		}
		t.AppendRow(table.Row{
			b.ID,
			b.Status,
			website,
			b.CreatedAt.Format("2006-01-02 15:04"),
			b.ExpiresAt.Format("2006-01-02 15:04"),
		})
	}

	t.Render()
}
