// Package websites implements the command-line interface for inspecting
// the website pool.
package websites

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

// Command returns the websites command group.
func Command(debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "websites",
		Short: "Manage websites",
	}
	cmd.AddCommand(newListCommand(debug))
	return cmd
}

func newListCommand(debug *bool) *cobra.Command {
	var moderation, crawl string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List websites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewDeps(*debug)
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}
			defer deps.Close()

			repo := database.NewWebsiteRepository(deps.DB)
			websites, err := repo.List(cmd.Context(), database.WebsiteFilter{
				ModerationStatus: models.ModerationStatus(moderation),
				CrawlStatus:      models.CrawlStatus(crawl),
				Limit:            defaultListLimit,
			})
			if err != nil {
				return fmt.Errorf("failed to list websites: %w", err)
			}

			if len(websites) == 0 {
				deps.Logger.Info("No websites found")
				return nil
			}

			renderTable(websites)
			return nil
		},
	}

	cmd.Flags().StringVar(&moderation, "moderation", "", "filter by moderation status")
	cmd.Flags().StringVar(&crawl, "crawl", "", "filter by crawl status")
	return cmd
}

func renderTable(websites []*models.Website) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Domain", "Moderation", "Crawl", "Attempts", "Pages"})
	for _, w := range websites {
		t.AppendRow(table.Row{
			w.ID,
			w.Domain,
			w.ModerationStatus,
			w.CrawlStatus,
			fmt.Sprintf("%d/%d", w.CrawlAttemptCount, w.MaxCrawlRetries+1),
			fmt.Sprintf("%d/%d", w.PagesCrawledCount, w.MaxPagesPerCrawl),
		})
	}

	t.Render()
}
