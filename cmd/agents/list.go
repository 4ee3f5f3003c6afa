// Package agents implements the command-line interface for inspecting
// configured agents.
package agents

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/curation-engine/cmd/common"
	"github.com/jonesrussell/curation-engine/internal/database"
	"github.com/jonesrussell/curation-engine/internal/models"
)

// Command returns the agents command group.
func Command(debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage agents",
	}
	cmd.AddCommand(newListCommand(debug))
	return cmd
}

func newListCommand(debug *bool) *cobra.Command {
	var role, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewDeps(*debug)
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}
			defer deps.Close()

			repo := database.NewAgentRepository(deps.DB)
			agents, err := repo.List(cmd.Context(), database.AgentFilter{
				Role:   models.AgentRole(role),
				Status: models.AgentStatus(status),
			})
			if err != nil {
				return fmt.Errorf("failed to list agents: %w", err)
			}

			if len(agents) == 0 {
				deps.Logger.Info("No agents configured")
				return nil
			}

			renderTable(agents)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "filter by role (curator, assistant)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (draft, active, paused)")
	return cmd
}

func renderTable(agents []*models.Agent) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Name", "Role", "Status", "Created"})
	for _, agent := range agents {
		t.AppendRow(table.Row{
			agent.ID,
			agent.DisplayName,
			agent.Role,
			agent.Status,
			agent.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	t.Render()
}
