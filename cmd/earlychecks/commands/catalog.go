package commands

import (
	"context"
	"fmt"

	"github.com/hwonboard/earlychecks/pkg/checks"
	"github.com/spf13/cobra"
)

var (
	latestModel   string
	latestVersion string
	latestOSU     bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the firmware catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every model and its firmware releases",
	RunE:  runCatalogList,
}

var catalogLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the firmware a device would be offered",
	RunE:  runCatalogLatest,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogLatestCmd)

	catalogLatestCmd.Flags().StringVar(&latestModel, "model", "", "Device model id")
	catalogLatestCmd.Flags().StringVar(&latestVersion, "version", "", "Firmware version running on the device")
	catalogLatestCmd.Flags().BoolVar(&latestOSU, "osu", false, "Device is running an OSU build")
	catalogLatestCmd.MarkFlagRequired("model")
	catalogLatestCmd.MarkFlagRequired("version")
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := openCatalog(ctx, cfg, newValidator(cfg))
	if err != nil {
		return err
	}

	models := cat.Models()
	if len(models) == 0 {
		fmt.Println("No manifests found")
		return nil
	}

	fmt.Printf("%-10s %-12s %-24s %-24s %-12s\n", "MODEL", "VERSION", "NAME", "OSU", "MIN")
	fmt.Println("------------------------------------------------------------------------------------")
	for _, id := range models {
		m, _ := cat.Manifest(id)
		for _, e := range m.Firmwares {
			fmt.Printf("%-10s %-12s %-24s %-24s %-12s\n", id, e.Version, e.Name, orDash(e.OSU), orDash(e.MinVersion))
		}
	}
	return nil
}

func runCatalogLatest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	validator := newValidator(cfg)
	if err := validator.ValidateModelID(latestModel); err != nil {
		return err
	}
	if err := validator.ValidateVersion(latestVersion); err != nil {
		return err
	}

	cat, err := openCatalog(ctx, cfg, validator)
	if err != nil {
		return err
	}

	fw, ok := cat.Latest(latestModel, checks.DeviceInfo{Version: latestVersion, IsOSU: latestOSU})
	if !ok {
		fmt.Printf("✅ %s %s is up to date\n", checks.ProductName(latestModel), latestVersion)
		return nil
	}

	req, _ := checks.NewUpdateRequest(
		checks.Device{ModelID: latestModel},
		&checks.DeviceInfo{Version: latestVersion, IsOSU: latestOSU},
		fw,
	)
	fmt.Printf("⬆️  %s %s can update to %s\n", checks.ProductName(latestModel), latestVersion, fw.Version)
	fmt.Printf("   final: %s\n", fw.FinalName())
	if fw.OSU != nil {
		fmt.Printf("   osu:   %s\n", fw.OSU.Name)
	}
	fmt.Printf("   mode:  %s, first step: %s\n", req.Mode, req.StepID)
	return nil
}
