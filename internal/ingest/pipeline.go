// Package ingest drives a source to exhaustion and upserts every listing it
// yields into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/logger"
	"github.com/spigell/commandjobs/internal/source"
	"github.com/spigell/commandjobs/internal/utils"
)

const previewLength = 80

// ErrMissingExternalID marks an item that cannot be deduplicated.
var ErrMissingExternalID = errors.New("listing has no external id")

// Upserter is the part of the store used by the pipeline.
type Upserter interface {
	UpsertListing(ctx context.Context, raw listing.Raw) (bool, error)
}

// Result summarises one run. New counts created listings, Seen counts every
// upserted item including duplicates.
type Result struct {
	RunID       string
	Source      string
	New         int
	Seen        int
	Skipped     int
	Interrupted bool
	// Stopped is set when the source failed. Err and Reason describe why.
	Stopped bool
	Reason  string
	Err     error
}

type Pipeline struct {
	store    Upserter
	observer Observer
	logger   *zap.Logger
}

type Option func(*Pipeline)

func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

func New(store Upserter, opts ...Option) *Pipeline {
	p := &Pipeline{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Run pulls listings from src until it is exhausted, fails, or ctx is done.
//
// A source failure is reported through the Result and a Failed event; the
// returned error is reserved for storage failures. Everything upserted
// before a stop stays stored.
func (p *Pipeline) Run(ctx context.Context, src source.Source) (Result, error) {
	res := Result{RunID: uuid.NewString(), Source: src.Name()}
	log := logger.WithFields(p.logger, logger.RunFields(res.RunID, res.Source)...)

	log.Info("scraping started")

	res, err := p.run(ctx, src, res, log)

	if ctx.Err() != nil {
		res.Interrupted = true
	}

	p.publish(Completed{
		Source:      res.Source,
		Total:       res.New,
		Seen:        res.Seen,
		Interrupted: res.Interrupted,
	})

	log.Info("scraping finished",
		zap.Int("new", res.New),
		zap.Int("seen", res.Seen),
		zap.Int("skipped", res.Skipped),
		zap.Bool("interrupted", res.Interrupted),
		zap.Bool("stopped", res.Stopped),
	)

	return res, err
}

func (p *Pipeline) run(ctx context.Context, src source.Source, res Result, log *zap.Logger) (Result, error) {
	progress := func(page string) {
		log.Debug("next page", zap.String("page", page), zap.Int("new", res.New))
		p.publish(PageAdvanced{Source: res.Source, Page: page, NewCount: res.New})
	}

	for raw, err := range src.Listings(ctx, progress) {
		if err != nil {
			var itemErr *source.ItemError
			if errors.As(err, &itemErr) {
				res.Skipped++
				log.Debug("skipping item", zap.Error(err))
				p.publish(ItemSkipped{Source: res.Source, Err: err})
				continue
			}
			if ctx.Err() != nil {
				return res, nil
			}

			res.Stopped = true
			res.Err = err
			res.Reason = Reason(err)
			log.Warn("source failed", zap.String("reason", res.Reason), zap.Error(err))
			p.publish(Failed{Source: res.Source, Reason: res.Reason, Err: err})
			return res, nil
		}

		raw = raw.Normalize(res.Source)
		if raw.ExternalID == "" {
			res.Skipped++
			p.publish(ItemSkipped{Source: res.Source, Err: ErrMissingExternalID})
			continue
		}

		inserted, err := p.store.UpsertListing(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return res, nil
			}
			p.publish(Failed{Source: res.Source, Reason: "storage error", Err: err})
			return res, fmt.Errorf("upsert listing %s: %w", raw.ExternalID, err)
		}

		res.Seen++
		if inserted {
			res.New++
		}

		p.publish(ItemIngested{
			Source:     res.Source,
			ExternalID: raw.ExternalID,
			Inserted:   inserted,
			NewCount:   res.New,
			Preview:    utils.TruncateForLog(utils.OneLine(raw.OriginalText), previewLength),
		})
	}

	return res, nil
}

func (p *Pipeline) publish(e Event) {
	if p.observer != nil {
		p.observer.Notify(e)
	}
}

// Reason renders a source failure as a single line for the user.
func Reason(err error) string {
	var transport *source.TransportError
	if errors.As(err, &transport) {
		if transport.Timeout {
			return "request timed out, try again later"
		}
		return "request failed: " + utils.OneLine(transport.Err.Error())
	}
	return "source failed: " + utils.OneLine(err.Error())
}
