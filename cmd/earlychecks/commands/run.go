package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hwonboard/earlychecks/pkg/catalog"
	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/hwonboard/earlychecks/pkg/db"
	"github.com/hwonboard/earlychecks/pkg/errors"
	"github.com/hwonboard/earlychecks/pkg/simulator"
	"github.com/hwonboard/earlychecks/pkg/updateflow"
	"github.com/spf13/cobra"
)

var (
	runAutoUpdate bool
	runMaxRetries int
	runTimeout    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.toml>",
	Short: "Run the early security checks against a simulated device",
	Long: `Runs the genuine check and the firmware update check against a device
scripted by a TOML scenario, answering every drawer automatically, and
records the session in the database.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runAutoUpdate, "auto-update", true, "Install an available firmware update")
	runCmd.Flags().IntVar(&runMaxRetries, "max-genuine-retries", 3, "Genuine check retries before giving up")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 2*time.Minute, "Give up after this long")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scenario, err := simulator.LoadScenario(args[0])
	if err != nil {
		return errors.Wrap(err, "scenario load failed")
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	validator := newValidator(cfg)
	cat, err := openCatalog(ctx, cfg, validator)
	if err != nil {
		return err
	}
	slog.Info("catalog_loaded", "source", cfg.CatalogSource, "models", cat.String())

	device := simulator.NewDevice(scenario, slog.Default())
	firmware := catalog.NewProvider(cat, device, cfg.PollInterval, slog.Default())

	host, err := updateflow.NewHost(ctx, updateflow.Config{
		DBPath:     cfg.FSMDBPath,
		MaxRetries: cfg.FSMMaxRetries,
		Store:      repo,
		Installer:  device,
		Validator:  validator,
	})
	if err != nil {
		return err
	}
	defer host.Close()

	ref := scenario.DeviceRef()
	sessionID := uuid.NewString()
	if err := repo.CreateSession(&db.Session{ID: sessionID, DeviceID: ref.DeviceID, ModelID: ref.ModelID}); err != nil {
		return errors.Wrap(err, "failed to record session")
	}

	fmt.Printf("🔎 Checking %s (%s) with scenario %q\n", checks.ProductName(ref.ModelID), ref.DeviceID, scenario.Name)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	pilot := newAutopilot(runAutoUpdate, runMaxRetries)
	completed := false

	session := checks.NewSession(runCtx, checks.SessionConfig{
		SessionID: sessionID,
		Device:    ref,
		Genuine:   device,
		Firmware:  firmware,
		Drawers:   newTerminalDrawers(os.Stdout),
		Updates:   host.ForSession(sessionID),
		Recorder:  repo,
		OnComplete: func() {
			completed = true
			if err := repo.MarkCompleted(sessionID); err != nil {
				slog.Error("session_complete_record_failed", "session_id", sessionID, "error", err)
			}
			stop()
		},
		OnChange: func(m *checks.Machine, st checks.FlowState, dr checks.DrawerKind) {
			fmt.Printf("   genuine=%s firmware=%s\n", st.GenuineCheckStatus, st.FirmwareUpdateStatus)
			switch act := pilot.next(st, dr); act {
			case actNone:
			case actFail:
				stop()
			default:
				pilot.apply(m, act)
			}
		},
	})
	session.Do(func(m *checks.Machine) { m.StartChecks() })

	runErr := session.Run(runCtx)

	switch {
	case pilot.failure != nil:
		fmt.Printf("❌ Session %s failed: %v\n", sessionID, pilot.failure)
		return pilot.failure
	case completed:
		fmt.Printf("✅ Session %s complete, continuing to setup\n", sessionID)
		return nil
	case ctx.Err() != nil:
		return errors.Wrap(ctx.Err(), "checks did not finish")
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return errors.Wrap(runErr, "session failed")
	}
	return errors.New("session stopped before completion")
}
