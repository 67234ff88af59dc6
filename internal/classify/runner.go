// Package classify sends batches of unclassified listings to the inference
// service and stores every prompt and answer.
package classify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/commandjobs/internal/ai"
	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/logger"
	"github.com/spigell/commandjobs/internal/utils"
	"github.com/spigell/commandjobs/internal/verdict"
)

const previewLength = 200

// Queue is the part of the store used by the runner.
type Queue interface {
	FetchUnclassified(ctx context.Context, batchSize int) ([]listing.Pending, error)
	SaveClassification(ctx context.Context, jobID int64, prompt, answer string) (bool, error)
}

// Renderer builds the prompt for one listing. *prompt.Template implements it.
type Renderer interface {
	Render(resume string, job listing.Pending) (string, error)
}

type Config struct {
	// ListingsPerBatch bounds both the batch and the number of requests in
	// flight.
	ListingsPerBatch int      `validate:"min=1"`
	Resume           string   `validate:"required"`
	Template         Renderer `validate:"required"`
}

// BatchResult counts the outcome of one batch. Saved counts stored
// interactions, of which Parsed produced a verdict and Malformed did not.
type BatchResult struct {
	RunID     string
	Requested int
	Saved     int
	Parsed    int
	Malformed int
	Failed    int
}

func (r *BatchResult) add(o BatchResult) {
	r.Requested += o.Requested
	r.Saved += o.Saved
	r.Parsed += o.Parsed
	r.Malformed += o.Malformed
	r.Failed += o.Failed
}

// BatchError is returned when at least one request of a batch failed. The
// successful siblings are already stored.
type BatchError struct {
	Requested int
	Failed    int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d classification requests failed: %v", e.Failed, e.Requested, e.Err)
}

func (e *BatchError) Unwrap() []error {
	return multierr.Errors(e.Err)
}

type Runner struct {
	cfg       Config
	store     Queue
	generator ai.Generator
	observer  Observer
	logger    *zap.Logger

	notifyMu sync.Mutex
}

type Option func(*Runner)

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

var validate = validator.New()

func New(cfg Config, store Queue, generator ai.Generator, opts ...Option) (*Runner, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid classification config: %w", err)
	}
	if store == nil || generator == nil {
		return nil, errors.New("classification needs a store and a generator")
	}

	r := &Runner{cfg: cfg, store: store, generator: generator}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.WithFields(r.logger, logger.CommonFields("", generator.Model())...)

	return r, nil
}

// RunBatch classifies up to ListingsPerBatch pending listings. Every prompt
// is rendered before the first request; a render failure aborts the batch
// with a *prompt.ConfigError. Requests then run concurrently and each answer
// is stored as soon as it arrives.
func (r *Runner) RunBatch(ctx context.Context) (BatchResult, error) {
	res := BatchResult{RunID: uuid.NewString()}
	log := logger.WithFields(r.logger, logger.RunFields(res.RunID, "")...)

	jobs, err := r.store.FetchUnclassified(ctx, r.cfg.ListingsPerBatch)
	if err != nil {
		return res, fmt.Errorf("fetch unclassified listings: %w", err)
	}
	if len(jobs) == 0 {
		log.Info("no listings to classify")
		return res, nil
	}

	prompts := make([]string, len(jobs))
	for i, job := range jobs {
		p, err := r.cfg.Template.Render(r.cfg.Resume, job)
		if err != nil {
			return res, fmt.Errorf("render prompt for listing %d: %w", job.ID, err)
		}
		prompts[i] = p
	}

	res.Requested = len(jobs)
	r.publish(BatchStarted{RunID: res.RunID, Size: len(jobs)})
	log.Info("classifying listings", zap.Int("count", len(jobs)))

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for i, job := range jobs {
		g.Go(func() error {
			out, err := r.classify(ctx, job, prompts[i], logger.WithFields(log, logger.JobID(job.ID)))

			mu.Lock()
			defer mu.Unlock()
			res.add(out)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("listing %d: %w", job.ID, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("batch finished",
		zap.Int("requested", res.Requested),
		zap.Int("saved", res.Saved),
		zap.Int("parsed", res.Parsed),
		zap.Int("malformed", res.Malformed),
		zap.Int("failed", res.Failed),
	)

	if errs != nil {
		return res, &BatchError{Requested: res.Requested, Failed: res.Failed, Err: errs}
	}
	return res, nil
}

func (r *Runner) classify(ctx context.Context, job listing.Pending, prompt string, log *zap.Logger) (BatchResult, error) {
	answer, err := r.generator.GenerateContent(ctx, prompt)
	if err != nil {
		log.Warn("classification request failed", zap.Error(err))
		r.publish(ItemFailed{JobID: job.ID, Err: err})
		return BatchResult{Failed: 1}, err
	}

	// Store the answer even if the caller gave up meanwhile.
	saved, err := r.store.SaveClassification(context.WithoutCancel(ctx), job.ID, prompt, answer)
	if err != nil {
		log.Error("saving classification", zap.Error(err))
		r.publish(ItemFailed{JobID: job.ID, Err: err})
		return BatchResult{Failed: 1}, fmt.Errorf("save classification: %w", err)
	}
	if !saved {
		log.Info("listing already classified")
		return BatchResult{}, nil
	}

	out := BatchResult{Saved: 1}

	v, err := verdict.Parse(answer)
	if err != nil {
		out.Malformed = 1
		log.Warn("malformed answer",
			zap.Error(err),
			zap.String("response_preview", utils.TruncateForLog(answer, previewLength)),
		)
		r.publish(Classified{JobID: job.ID, Parsed: false})
		return out, nil
	}

	if issues, err := verdict.Check(answer); err == nil && len(issues) > 0 {
		log.Warn("answer does not match the output schema", zap.Strings("issues", issues))
	}

	out.Parsed = 1
	log.Debug("listing classified",
		zap.String("company", v.CompanyName),
		zap.String("fit", v.FitForResume),
	)
	r.publish(Classified{
		JobID:   job.ID,
		Company: v.CompanyName,
		Summary: v.SmallSummary,
		Fit:     v.Fit(),
		Parsed:  true,
	})

	return out, nil
}

// Run calls RunBatch until nothing is pending, maxBatches batches have run
// (zero means no limit), or a batch fails without storing anything. Item
// failures of all batches are returned together as one *BatchError.
func (r *Runner) Run(ctx context.Context, maxBatches int) (BatchResult, error) {
	var (
		total BatchResult
		errs  error
	)

	for batch := 0; maxBatches <= 0 || batch < maxBatches; batch++ {
		if ctx.Err() != nil {
			break
		}

		res, err := r.RunBatch(ctx)
		total.add(res)

		var batchErr *BatchError
		switch {
		case errors.As(err, &batchErr):
			errs = multierr.Append(errs, batchErr.Err)
		case err != nil:
			return total, err
		}

		if res.Requested == 0 || res.Saved == 0 {
			break
		}
	}

	if errs != nil {
		return total, &BatchError{Requested: total.Requested, Failed: total.Failed, Err: errs}
	}
	return total, nil
}

func (r *Runner) publish(e Event) {
	if r.observer == nil {
		return
	}
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.observer.Notify(e)
}
