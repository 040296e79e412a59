package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arvinsingh/fictech-harvester/internal/checkpoint"
	"github.com/arvinsingh/fictech-harvester/internal/store"
)

// runStatus summarizes a resumable run for the status command.
type runStatus struct {
	RunID             string    `json:"run_id"`
	RunStartedAt      time.Time `json:"run_started_at"`
	VisitedCategories int       `json:"visited_categories"`
	VisitedPages      int       `json:"visited_pages"`
	FrontierPending   int       `json:"frontier_pending"`
	EntriesEmitted    int       `json:"entries_emitted"`
	StoredEntries     int       `json:"stored_entries,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint and run progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ckpt := checkpoint.NewManager(cfg.Harvest.CheckpointFile)
		saved, err := ckpt.Load()
		if err != nil {
			return err
		}
		if saved == nil {
			fmt.Println("no checkpoint found; the next harvest starts fresh")
			return nil
		}

		status := runStatus{
			RunID:             saved.RunID,
			RunStartedAt:      saved.RunStartedAt,
			VisitedCategories: len(saved.VisitedCategories),
			VisitedPages:      len(saved.VisitedPages),
			FrontierPending:   len(saved.Frontier),
			EntriesEmitted:    saved.EntriesEmitted,
		}

		if _, err := os.Stat(cfg.Store.Path); err == nil {
			db, err := store.NewSQLite(cfg.Store.Path)
			if err == nil {
				defer db.Close() //nolint:errcheck
				if n, err := db.CountEntries(cmd.Context(), saved.RunID); err == nil {
					status.StoredEntries = n
				}
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
