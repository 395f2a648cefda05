package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/sink/sqlite"

	"github.com/spf13/cobra"
)

var (
	exportPlatform string
	exportOut      string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export harvested comments from the SQLite store to CSV",
	Long: `Export every comment stored for a platform to a CSV file with the same
columns the CSV sink writes, in the order they were harvested.`,
	Example: `  commentharvest export --platform tiktok --out tiktok_comments.csv`,
	Args:    cobra.NoArgs,
	RunE:    runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportPlatform, "platform", "p", "", "platform to export (tiktok, instagram)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "destination CSV file")
	exportCmd.MarkFlagRequired("platform")
	exportCmd.MarkFlagRequired("out")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	if cfg.Sink.Backend != "sqlite" {
		return errors.New("export reads the sqlite sink; the csv sink already writes CSV files")
	}

	platform, err := models.ParsePlatform(exportPlatform)
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	store, err := sqlite.Open(cmd.Context(), cfg.Sink.DatabasePath(), log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := os.MkdirAll(filepath.Dir(exportOut), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(exportOut)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	n, err := store.ExportCSV(cmd.Context(), platform, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	log.InfoWithFields("Export complete", map[string]interface{}{
		"platform": platform,
		"rows":     n,
		"file":     exportOut,
	})
	fmt.Printf("Exported %d comments to %s\n", n, exportOut)
	return nil
}
