package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/hwonboard/earlychecks/pkg/db"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	pruneOlderThan time.Duration
	pruneID        string
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete recorded sessions with their transitions and updates",
	Long: `Delete recorded sessions:
  --id <session>        Delete one session
  --older-than <dur>    Delete sessions created before now minus dur`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "Delete sessions older than this duration")
	pruneCmd.Flags().StringVar(&pruneID, "id", "", "Delete a specific session")
}

func runPrune(cmd *cobra.Command, args []string) error {
	if pruneID == "" && pruneOlderThan <= 0 {
		return fmt.Errorf("must specify --id or --older-than")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	ctx := context.Background()

	if pruneID != "" {
		fmt.Printf("🧹 Deleting session %s...\n", pruneID)
		if err := repo.DeleteSession(ctx, pruneID); err != nil {
			return errors.Wrap(err, "delete failed")
		}
		fmt.Printf("✅ Deleted: %s\n", pruneID)
		return nil
	}

	cutoff := time.Now().Add(-pruneOlderThan)
	n, err := repo.DeleteSessionsOlderThan(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "prune failed")
	}
	fmt.Printf("✅ Removed %d sessions older than %s\n", n, pruneOlderThan)
	return nil
}
