package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/ai/gemini"
	"github.com/spigell/commandjobs/internal/classify"
	"github.com/spigell/commandjobs/internal/prompt"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Ask the AI model to judge unclassified listings against your resume",
	Run: func(cmd *cobra.Command, _ []string) {
		classifyListings(cmd)
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().IntP("batches", "b", -1, "number of batches to run, 0 runs until nothing is pending (default from config)")
}

func classifyListings(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e := setup(ctx, false)
	defer e.Close()

	batches, _ := cmd.Flags().GetInt("batches")
	if batches < 0 {
		batches = e.config.Classification.MaxBatches
	}

	runner, err := newRunner(ctx, e, printClassifyEvent)
	if err != nil {
		e.logger.Fatal("preparing classification", zap.Error(err))
	}

	res, err := runner.Run(ctx, batches)
	fmt.Println(classifySummary(res))

	var batchErr *classify.BatchError
	switch {
	case errors.As(err, &batchErr):
		e.logger.Warn("some listings were not classified and stay pending", zap.Error(err))
	case err != nil:
		e.logger.Fatal("classification failed", zap.Error(err))
	}
}

func newRunner(ctx context.Context, e *env, observe classify.ObserverFunc) (*classify.Runner, error) {
	cfg := e.config

	resume, err := loadResume(cfg)
	if err != nil {
		return nil, err
	}

	tmpl, err := prompt.New(cfg.Classification.Prompt)
	if err != nil {
		return nil, err
	}

	apiKey, err := loadAPIKey(cfg)
	if err != nil {
		return nil, err
	}

	generator, err := gemini.NewGenerator(ctx, gemini.Options{
		APIKey:            apiKey,
		Model:             cfg.AI.Gemini.Model,
		SystemInstruction: cfg.AI.Gemini.SystemInstruction,
		MaxRetries:        cfg.AI.Gemini.MaxRetries,
		Timeout:           cfg.AI.Gemini.Timeout,
	}, e.logger.With(zap.Int("ai_retry_attempts", cfg.AI.Gemini.MaxRetries)))
	if err != nil {
		return nil, err
	}

	return classify.New(classify.Config{
		ListingsPerBatch: cfg.Classification.ListingsPerBatch,
		Resume:           resume,
		Template:         tmpl,
	}, e.store, generator,
		classify.WithLogger(e.logger),
		classify.WithObserver(observe),
	)
}

func printClassifyEvent(ev classify.Event) {
	switch ev := ev.(type) {
	case classify.BatchStarted:
		fmt.Printf("checking %d listings\n", ev.Size)
	case classify.Classified:
		switch {
		case !ev.Parsed:
			fmt.Printf("#%d: answer could not be read\n", ev.JobID)
		case ev.Fit:
			fmt.Printf("#%d: %s, good fit: %s\n", ev.JobID, ev.Company, ev.Summary)
		default:
			fmt.Printf("#%d: %s, not a fit\n", ev.JobID, ev.Company)
		}
	case classify.ItemFailed:
		fmt.Printf("#%d: request failed: %v\n", ev.JobID, ev.Err)
	}
}

func classifySummary(res classify.BatchResult) string {
	s := fmt.Sprintf("classified %d of %d listings", res.Saved, res.Requested)
	if res.Failed > 0 {
		s += fmt.Sprintf(", %d failed", res.Failed)
	}
	if res.Malformed > 0 {
		s += fmt.Sprintf(", %d answers could not be read", res.Malformed)
	}
	return s
}
