package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/ingest"
	"github.com/spigell/commandjobs/internal/source"
	"github.com/spigell/commandjobs/internal/source/hackernews"
	"github.com/spigell/commandjobs/internal/source/jsonl"
	"github.com/spigell/commandjobs/internal/source/waas"
)

const (
	sourceHN   = "hn"
	sourceWAAS = "waas"
	sourceFile = "file"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [hn|waas|file]...",
	Short: "Scrape job listings into the local store",
	Long: `Scrape job listings from one or more sources. Sources run in parallel and
only new listings are stored, so a scrape can be repeated safely.`,
	Args:      cobra.MinimumNArgs(1),
	ValidArgs: []string{sourceHN, sourceWAAS, sourceFile},
	Run: func(cmd *cobra.Command, args []string) {
		scrape(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringP("file", "f", "", "newline-delimited JSON file for the file source")
	scrapeCmd.Flags().String("label", "", "source label for records of the file source without one")
}

func scrape(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e := setup(ctx, false)
	defer e.Close()

	file, _ := cmd.Flags().GetString("file")
	label, _ := cmd.Flags().GetString("label")

	sources := make([]source.Source, 0, len(args))
	for _, name := range args {
		src, err := newSource(e, name, file, label)
		if err != nil {
			e.logger.Fatal("preparing source", zap.Error(err))
		}
		sources = append(sources, src)
	}

	results, err := scrapeAll(ctx, e, sources, printIngestEvent)
	for _, res := range results {
		fmt.Println(summary(res))
	}
	if err != nil {
		e.logger.Fatal("scraping failed", zap.Error(err))
	}
}

func newSource(e *env, name, file, label string) (source.Source, error) {
	cfg := e.config.Sources
	fetcher := source.NewFetcher(source.NewHTTPClient(cfg.Timeout), e.logger)
	if ua := strings.TrimSpace(cfg.UserAgent); ua != "" {
		fetcher.UserAgent = ua
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case sourceHN:
		return hackernews.New(cfg.HackerNews.URL, fetcher,
			hackernews.WithPageDelay(cfg.HackerNews.PageDelay),
			hackernews.WithLogger(e.logger),
		), nil
	case sourceWAAS:
		return waas.New(cfg.WAAS.URL, fetcher, e.logger), nil
	case sourceFile:
		if strings.TrimSpace(file) == "" {
			return nil, fmt.Errorf("the %s source needs --file", sourceFile)
		}
		return jsonl.New(file, label), nil
	default:
		return nil, fmt.Errorf("unknown source %q (use %s, %s or %s)", name, sourceHN, sourceWAAS, sourceFile)
	}
}

// scrapeAll runs every source as its own task and waits for all of them.
// Storage errors of all tasks are returned together.
func scrapeAll(ctx context.Context, e *env, sources []source.Source, observe ingest.ObserverFunc) ([]ingest.Result, error) {
	pipeline := ingest.New(e.store, ingest.WithLogger(e.logger), ingest.WithObserver(observe))

	tasks := make([]*ingest.Task, len(sources))
	for i, src := range sources {
		tasks[i] = pipeline.Start(ctx, src)
	}

	var (
		results = make([]ingest.Result, 0, len(tasks))
		errs    error
	)
	for _, task := range tasks {
		res, err := task.Wait()
		results = append(results, res)
		errs = multierr.Append(errs, err)
	}

	return results, errs
}

func printIngestEvent(ev ingest.Event) {
	switch ev := ev.(type) {
	case ingest.PageAdvanced:
		fmt.Printf("[%s] scraping %s (%d new so far)\n", ev.Source, ev.Page, ev.NewCount)
	case ingest.ItemIngested:
		if ev.Inserted {
			fmt.Printf("[%s] new: %s\n", ev.Source, ev.Preview)
		}
	case ingest.Failed:
		fmt.Printf("[%s] %s\n", ev.Source, ev.Reason)
	}
}

func summary(res ingest.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d new listings, %d seen", res.Source, res.New, res.Seen)
	if res.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", res.Skipped)
	}
	switch {
	case res.Interrupted:
		b.WriteString(" (interrupted)")
	case res.Stopped:
		fmt.Fprintf(&b, " (stopped: %s)", res.Reason)
	}
	return b.String()
}
