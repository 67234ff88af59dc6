package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/store"
)

var listingCmd = &cobra.Command{
	Use:   "listing",
	Short: "Inspect a stored listing",
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a listing as Markdown",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		showListing(args[0])
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Hide a listing from the matches",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		withListing(args[0], func(ctx context.Context, s store.Store, id int64) error {
			return s.MarkDiscarded(ctx, id)
		}, "listing discarded")
	},
}

var appliedCmd = &cobra.Command{
	Use:   "applied <id>",
	Short: "Mark a listing as applied to",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		date, _ := cmd.Flags().GetString("date")
		at, err := appliedDate(date)
		if err != nil {
			fmt.Println(err)
			return
		}
		withListing(args[0], func(ctx context.Context, s store.Store, id int64) error {
			return s.MarkApplied(ctx, id, at)
		}, "listing marked as applied")
	},
}

func init() {
	listingCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listingCmd, discardCmd, appliedCmd)

	appliedCmd.Flags().String("date", "", "application date as YYYY-MM-DD (default today)")
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid listing id %q", arg)
	}
	return id, nil
}

func appliedDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Now(), nil
	}
	at, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return at, nil
}

func withListing(arg string, action func(context.Context, store.Store, int64) error, done string) {
	ctx := context.Background()

	id, err := parseID(arg)
	if err != nil {
		fmt.Println(err)
		return
	}

	e := setup(ctx, false)
	defer e.Close()

	if err := action(ctx, e.store, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("listing %d not found\n", id)
			return
		}
		e.logger.Fatal("updating listing", zap.Int64("id", id), zap.Error(err))
	}

	e.logger.Info(done, zap.Int64("id", id))
}

func showListing(arg string) {
	ctx := context.Background()

	id, err := parseID(arg)
	if err != nil {
		fmt.Println(err)
		return
	}

	e := setup(ctx, false)
	defer e.Close()

	l, err := e.store.GetListing(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Printf("listing %d not found\n", id)
		return
	}
	if err != nil {
		e.logger.Fatal("getting listing", zap.Int64("id", id), zap.Error(err))
	}

	fmt.Println(renderListing(l))
}

var markdown = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// renderListing prints the stored HTML as Markdown, falling back to the
// plain text when there is no HTML or it cannot be converted.
func renderListing(l listing.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Listing %d (%s)\n\n", l.ID, l.Source)
	fmt.Fprintf(&b, "%s\nscraped %s", l.ExternalID, l.ScrapedAt.Local().Format(time.DateTime))
	switch {
	case l.Applied && l.AppliedDate != nil:
		fmt.Fprintf(&b, ", applied %s", l.AppliedDate.Local().Format(time.DateOnly))
	case l.Applied:
		b.WriteString(", applied")
	}
	if l.Discarded {
		b.WriteString(", discarded")
	}
	b.WriteString("\n\n")

	body := l.OriginalText
	if strings.TrimSpace(l.OriginalHTML) != "" {
		if md, err := markdown.ConvertString(l.OriginalHTML, converter.WithDomain(l.ExternalID)); err == nil && strings.TrimSpace(md) != "" {
			body = md
		}
	}
	b.WriteString(strings.TrimSpace(body))

	return b.String()
}
