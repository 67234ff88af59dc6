package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/match"
	"github.com/spigell/commandjobs/internal/utils"
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List listings the AI model judged a good fit",
	Run: func(cmd *cobra.Command, _ []string) {
		matches(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchesCmd)

	matchesCmd.Flags().IntP("page", "p", 1, "page to show")
	matchesCmd.Flags().IntP("size", "s", 0, "matches per page (default from config)")
}

func matches(cmd *cobra.Command) {
	ctx := context.Background()

	e := setup(ctx, false)
	defer e.Close()

	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("size")
	if size <= 0 {
		size = e.config.pageSize()
	}

	engine, err := match.New(e.store)
	if err != nil {
		e.logger.Fatal("preparing matches", zap.Error(err))
	}

	total, err := engine.TotalPages(ctx, size)
	if err != nil {
		e.logger.Fatal("counting matches", zap.Error(err))
	}

	items, err := engine.Page(ctx, page, size)
	if err != nil {
		e.logger.Fatal("getting matches", zap.Error(err))
	}

	if viper.GetBool("json") {
		pretty, _ := json.MarshalIndent(items, "", "  ")
		fmt.Println(string(pretty))
		return
	}

	if len(items) == 0 {
		fmt.Println("no matching listings yet")
		return
	}

	writeMatches(os.Stdout, items)
	fmt.Printf("page %d of %d\n", page, total)
}

func (c *Config) pageSize() int {
	if c.Matches.PageSize > 0 {
		return c.Matches.PageSize
	}
	return match.DefaultPageSize
}

func writeMatches(out io.Writer, items []listing.Match) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMPANY\tPOSITIONS\tUS\tSCRAPED\tSUMMARY")
	for _, m := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			m.JobID,
			utils.TruncateForLog(m.CompanyName, 24),
			utils.TruncateForLog(positions(m.AvailablePositions), 40),
			m.HiringInUS,
			m.ScrapedAt.Local().Format("2006-01-02"),
			utils.TruncateForLog(utils.OneLine(m.SmallSummary), 60),
		)
	}
	_ = w.Flush()
}

func positions(ps []listing.Position) string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.Position != "" {
			names = append(names, p.Position)
		}
	}
	return strings.Join(names, ", ")
}
