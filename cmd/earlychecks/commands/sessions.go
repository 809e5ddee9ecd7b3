package commands

import (
	"fmt"

	"github.com/hwonboard/earlychecks/pkg/db"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/spf13/cobra"
)

var sessionsID string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List check sessions, or show one with --id",
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().StringVar(&sessionsID, "id", "", "Show transitions and updates of one session")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	if sessionsID != "" {
		return showSession(repo, sessionsID)
	}

	sessions, err := repo.ListSessions()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return nil
	}

	fmt.Printf("%-38s %-16s %-10s %-16s %-16s %-10s %-20s\n", "SESSION", "DEVICE", "MODEL", "GENUINE", "FIRMWARE", "COMPLETED", "CREATED")
	fmt.Println("------------------------------------------------------------------------------------------------------------------------------")

	for _, s := range sessions {
		fmt.Printf("%-38s %-16s %-10s %-16s %-16s %-10t %-20s\n",
			s.ID, s.DeviceID, orDash(s.ModelID), s.GenuineStatus, s.FirmwareStatus, s.Completed, s.CreatedAt)
	}

	return nil
}

func showSession(repo *db.Repository, id string) error {
	s, err := repo.GetSession(id)
	if err != nil {
		return errors.Wrap(err, "session lookup failed")
	}
	if s == nil {
		return fmt.Errorf("session %s not found", id)
	}

	fmt.Printf("Session:   %s\n", s.ID)
	fmt.Printf("Device:    %s (%s)\n", s.DeviceID, orDash(s.ModelID))
	fmt.Printf("Genuine:   %s\n", s.GenuineStatus)
	fmt.Printf("Firmware:  %s\n", s.FirmwareStatus)
	fmt.Printf("Completed: %t\n", s.Completed)

	transitions, err := repo.ListTransitions(id)
	if err != nil {
		return errors.Wrap(err, "transitions lookup failed")
	}
	fmt.Printf("\n%-30s %-10s %-16s %-16s %-24s\n", "AT", "CHECK", "FROM", "TO", "REASON")
	for _, t := range transitions {
		fmt.Printf("%-30s %-10s %-16s %-16s %-24s\n", t.At, t.Check, t.From, t.To, orDash(t.Reason))
	}

	updates, err := repo.ListUpdates(id)
	if err != nil {
		return errors.Wrap(err, "updates lookup failed")
	}
	if len(updates) == 0 {
		return nil
	}
	fmt.Printf("\n%-28s %-16s %-12s %-12s %-10s %-8s %s\n", "UPDATE", "FIRMWARE", "MODE", "STEP", "STATUS", "ATTEMPTS", "ERROR")
	for _, u := range updates {
		fmt.Printf("%-28s %-16s %-12s %-12s %-10s %-8d %s\n",
			u.ID, u.Firmware, u.Mode, u.StepID, u.Status, u.Attempts, orDash(u.ErrorMessage))
	}

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
