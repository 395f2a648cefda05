package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"

	"github.com/spf13/cobra"
)

var statusPlatform string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-post harvest progress",
	Long: `List the checkpoint of every post the configured sink knows about:
the cursor to resume from (or "done"), the number of comments written
and when the post was last attempted.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusPlatform, "platform", "p", "", "platform to list (default: all)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	platforms := []models.Platform{models.PlatformTikTok, models.PlatformInstagram}
	if statusPlatform != "" {
		p, err := models.ParsePlatform(statusPlatform)
		if err != nil {
			return err
		}
		platforms = []models.Platform{p}
	}

	out, err := openSink(cmd.Context(), cfg, logger.GetLogger())
	if err != nil {
		return err
	}
	defer out.Close()

	lister, ok := out.(checkpointLister)
	if !ok {
		return fmt.Errorf("sink backend %q cannot list checkpoints", cfg.Sink.Backend)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tPOST\tCURSOR\tCOMMENTS\tLAST ATTEMPT")
	for _, p := range platforms {
		cps, err := lister.Checkpoints(cmd.Context(), p)
		if err != nil {
			return err
		}
		for _, cp := range cps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", cp.Platform, cp.PostID, cp.CursorOrDone(), cp.EmittedCount, formatTime(cp.LastAttemptAt))
		}
	}
	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
