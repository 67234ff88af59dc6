package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/listing"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show listing and classification counts",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()

		e := setup(ctx, false)
		defer e.Close()

		stats, err := e.store.Stats(ctx)
		if err != nil {
			e.logger.Fatal("getting stats", zap.Error(err))
		}

		if viper.GetBool("json") {
			pretty, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(pretty))
			return
		}
		fmt.Println(formatStats(stats))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func formatStats(s listing.Stats) string {
	return fmt.Sprintf(
		"%d listings, %d processed with AI (%d answers could not be read), %d pending, %d applied, %d discarded",
		s.Listings, s.Classified, s.Malformed, s.Pending, s.Applied, s.Discarded,
	)
}
