package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/classify"
	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/match"
	"github.com/spigell/commandjobs/internal/source"
)

const (
	PromptScrapeHN    = `Scrape "Ask HN: Who's hiring?"`
	PromptScrapeWAAS  = `Scrape "Work at a Startup"`
	PromptShow        = "Show"
	PromptApplied     = "Mark as applied"
	PromptDiscard     = "Discard"
	PromptNextPage    = "Next page"
	PromptPrevPage    = "Previous page"
	PromptBack        = "back"
	PromptQuit        = "Quit"
	menuLabel         = "What next?"
	matchLabelPattern = "#%d %s | %s"
)

var errExit = errors.New("exit requested")

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Open the interactive menu (the default command)",
	Run: func(cmd *cobra.Command, _ []string) {
		menu(cmd)
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
}

// menu is the interactive entry point. Logs go to the log file so they do not
// tear the prompts.
func menu(_ *cobra.Command) {
	ctx := context.Background()

	e := setup(ctx, true)
	defer e.Close()

	e.logger.Info("starting the menu", zap.String("version", version))

	for {
		items, err := menuItems(ctx, e)
		if err != nil {
			e.logger.Fatal("building menu", zap.Error(err))
		}

		sel := promptui.Select{Label: menuLabel, Items: items, Size: len(items)}
		i, _, err := sel.Run()
		if err != nil {
			// Ctrl-C or Ctrl-D on the prompt.
			return
		}

		if err := handleMenuAction(ctx, e, i); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			fmt.Println(err)
			e.logger.Error("menu action failed", zap.Error(err))
		}
	}
}

func menuItems(ctx context.Context, e *env) ([]string, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	engine, err := match.New(e.store)
	if err != nil {
		return nil, err
	}
	count, err := engine.Count(ctx)
	if err != nil {
		return nil, err
	}

	browse := "No job matches for your resume yet"
	if count > 0 {
		browse = fmt.Sprintf("Browse %d recommended listings", count)
	}

	return []string{
		PromptScrapeHN,
		PromptScrapeWAAS,
		fmt.Sprintf("Find best matches with AI (%d pending, %d listings at a time)", stats.Pending, e.config.Classification.ListingsPerBatch),
		browse,
		formatStats(stats),
		PromptQuit,
	}, nil
}

func handleMenuAction(ctx context.Context, e *env, index int) error {
	switch index {
	case 0:
		return menuScrape(ctx, e, sourceHN)
	case 1:
		return menuScrape(ctx, e, sourceWAAS)
	case 2:
		return menuClassify(ctx, e)
	case 3:
		return browseMatches(ctx, e)
	case 4:
		return nil
	case 5:
		return errExit
	default:
		return fmt.Errorf("invalid action: %d", index)
	}
}

func menuScrape(ctx context.Context, e *env, name string) error {
	src, err := newSource(e, name, "", "")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Printf("scraping %s, press Ctrl-C to stop\n", src.Name())
	results, err := scrapeAll(ctx, e, []source.Source{src}, printIngestEvent)
	for _, res := range results {
		fmt.Println(summary(res))
	}
	return err
}

func menuClassify(ctx context.Context, e *env) error {
	runner, err := newRunner(ctx, e, printClassifyEvent)
	if err != nil {
		return err
	}

	res, err := runner.RunBatch(ctx)
	fmt.Println(classifySummary(res))

	var batchErr *classify.BatchError
	if errors.As(err, &batchErr) {
		e.logger.Warn("some listings were not classified and stay pending", zap.Error(err))
		return nil
	}
	return err
}

func browseMatches(ctx context.Context, e *env) error {
	engine, err := match.New(e.store)
	if err != nil {
		return err
	}
	size := e.config.pageSize()

	page := 1
	for {
		total, err := engine.TotalPages(ctx, size)
		if err != nil {
			return err
		}
		if total == 0 {
			fmt.Println("no matching listings yet")
			return nil
		}
		page = min(page, total)

		items, err := engine.Page(ctx, page, size)
		if err != nil {
			return err
		}

		labels := make([]string, 0, len(items)+3)
		for _, m := range items {
			labels = append(labels, fmt.Sprintf(matchLabelPattern, m.JobID, m.CompanyName, m.SmallSummary))
		}
		if page < total {
			labels = append(labels, PromptNextPage)
		}
		if page > 1 {
			labels = append(labels, PromptPrevPage)
		}
		labels = append(labels, PromptBack)

		sel := promptui.Select{
			Label: fmt.Sprintf("Matches, page %d of %d", page, total),
			Items: labels,
			Size:  min(len(labels), 15),
		}
		i, choice, err := sel.Run()
		if err != nil {
			return nil
		}

		switch {
		case choice == PromptBack:
			return nil
		case choice == PromptNextPage:
			page++
		case choice == PromptPrevPage:
			page--
		case i < len(items):
			if err := matchActions(ctx, e, items[i]); err != nil {
				return err
			}
		}
	}
}

func matchActions(ctx context.Context, e *env, m listing.Match) error {
	for {
		sel := promptui.Select{
			Label: fmt.Sprintf(matchLabelPattern, m.JobID, m.CompanyName, m.ExternalID),
			Items: []string{PromptShow, PromptApplied, PromptDiscard, PromptBack},
		}
		_, choice, err := sel.Run()
		if err != nil {
			return nil
		}

		switch choice {
		case PromptShow:
			l, err := e.store.GetListing(ctx, m.JobID)
			if err != nil {
				return err
			}
			fmt.Println(renderListing(l))
			fmt.Println()
			fmt.Println(describeMatch(m))
		case PromptApplied:
			if err := e.store.MarkApplied(ctx, m.JobID, time.Now()); err != nil {
				return err
			}
			e.logger.Info("listing marked as applied", zap.Int64("id", m.JobID))
			return nil
		case PromptDiscard:
			if err := e.store.MarkDiscarded(ctx, m.JobID); err != nil {
				return err
			}
			e.logger.Info("listing discarded", zap.Int64("id", m.JobID))
			return nil
		default:
			return nil
		}
	}
}

func describeMatch(m listing.Match) string {
	return fmt.Sprintf(
		"Company: %s\nPositions: %s\nRemote: %s, hiring in US: %s\nTech stack: %s\nWhy it fits: %s\nHow to apply: %s",
		m.CompanyName, positions(m.AvailablePositions), m.RemotePositions, m.HiringInUS,
		m.TechStackDescription, m.FitJustification, m.HowToApply,
	)
}
