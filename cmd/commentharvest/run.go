package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"commentharvest/pkg/config"
	"commentharvest/pkg/harvest"
	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/targets"
	"commentharvest/pkg/transport"

	"github.com/spf13/cobra"
)

var (
	runInput    string
	runPlatform string
	runWorkers  int
	runMaxPages int
	runSink     string
	runOutput   string
	runSummary  string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest comments for every post in an input file",
	Long: `Harvest comments for every post listed in an input CSV.

Each row holds a post id or URL. A header row is skipped, and a "platform"
column, when present, overrides --platform for that row. Posts already
finished by an earlier run are skipped without any network call.

Exit status is 2 when a platform rejected the configured credentials,
1 for any other failure.`,
	Example: `  # Harvest TikTok comments into ./output/comments.db
  commentharvest run --input posts.csv --platform tiktok

  # Instagram, CSV output, 5 workers
  COMMENTHARVEST_IG_SESSION_ID=... commentharvest run -i posts.csv -p instagram --sink csv --workers 5`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "input CSV of post ids or URLs")
	runCmd.Flags().StringVarP(&runPlatform, "platform", "p", "", "default platform (tiktok, instagram)")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "number of posts harvested concurrently")
	runCmd.Flags().IntVar(&runMaxPages, "max-pages", 0, "page cap per post and run")
	runCmd.Flags().StringVar(&runSink, "sink", "", "output backend (sqlite, csv)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output directory")
	runCmd.Flags().StringVar(&runSummary, "summary", "", "write the run summary as JSON to this file")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(map[string]interface{}{
		"platform":  runPlatform,
		"input":     runInput,
		"workers":   runWorkers,
		"max-pages": runMaxPages,
		"sink":      runSink,
		"output":    runOutput,
		"summary":   runSummary,
	})
	if err != nil {
		return err
	}
	if cfg.Harvest.InputFile == "" {
		return errors.New("no input file given (use --input)")
	}

	log := logger.GetLogger()

	platform, err := models.ParsePlatform(cfg.Harvest.Platform)
	if err != nil {
		return err
	}
	posts, err := targets.Load(cfg.Harvest.InputFile, platform)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		log.Warn("input file holds no posts")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := openSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer out.Close()

	seen, err := openDedup(ctx, cfg)
	if err != nil {
		return err
	}
	defer seen.Close()

	var sources []harvest.Source
	for _, p := range platformsOf(posts) {
		src, err := newSource(cfg, p, log)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}

	client := transport.NewClient(cfg.HTTP.Timeout, log)
	if cfg.HTTP.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.HTTP.UserAgent)
	}

	orch, err := harvest.NewOrchestrator(harvest.Options{
		Sources:  sources,
		Fetcher:  client,
		Limiter:  newLimiter(cfg),
		Retry:    newRetryConfig(cfg, log),
		Sink:     out,
		Dedup:    seen,
		Workers:  cfg.Harvest.Workers,
		MaxPages: cfg.Harvest.MaxPages,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	log.InfoWithFields("Starting harvest", map[string]interface{}{
		"input": cfg.Harvest.InputFile,
		"sink":  cfg.Sink.Backend,
		"dedup": cfg.Dedup.Backend,
	})

	summary, runErr := orch.Run(ctx, posts)
	if summary != nil {
		printSummary(summary)
		publish(cfg, summary, log)
	}

	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	return runErr
}

// platformsOf lists the distinct platforms in input order
func platformsOf(posts []models.PostTarget) []models.Platform {
	var out []models.Platform
	seen := make(map[models.Platform]bool)
	for _, p := range posts {
		if !seen[p.Platform] {
			seen[p.Platform] = true
			out = append(out, p.Platform)
		}
	}
	return out
}

// publish delivers the summary. Delivery failures are logged and do not
// change the run's exit status.
func publish(cfg *config.Config, summary *models.Summary, log logger.Logger) {
	pub, err := newPublisher(cfg, log)
	if err != nil {
		log.WithError(err).Warn("summary publisher unavailable")
		return
	}
	if pub == nil {
		return
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.Timeout)
	defer cancel()
	if err := pub.Publish(ctx, summary); err != nil {
		log.WithError(err).Warn("failed to publish run summary")
	}
}

func printSummary(s *models.Summary) {
	fmt.Printf("\nRun %s\n", s.RunID)
	fmt.Printf("  Posts:      %d (done %d, skipped %d, aborted %d, cancelled %d)\n",
		s.PostsTotal, s.Succeeded, s.Skipped, s.Aborted, s.Cancelled)
	fmt.Printf("  Comments:   %d written, %d duplicates, %d malformed\n",
		s.Comments, s.Duplicates, s.Malformed)
	fmt.Printf("  Retries:    %d\n", s.Retries)
	fmt.Printf("  Replies:    %d pages\n", s.ReplyPages)
	for _, p := range s.Posts {
		if p.Error != "" {
			fmt.Printf("  %-9s %s: %s\n", p.Status, p.Target, p.Error)
		}
	}
	if s.AuthFailed {
		fmt.Println("\nCredentials were rejected. Refresh the session and run again; finished posts will be skipped.")
	}
}
