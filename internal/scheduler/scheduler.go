// Package scheduler periodically re-ingests tracked symbols and
// refreshes the company directory from the upstream feed.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"finsight/internal/domain"
)

// FetchFunc returns the current raw documents for a symbol. The
// returned revision(s) decide whether anything actually changes in the
// store.
type FetchFunc func(ctx context.Context, symbol string) ([]domain.RawDocument, error)

// DirectoryFetchFunc returns the full current company list.
type DirectoryFetchFunc func(ctx context.Context) ([]domain.CompanyRecord, error)

// Ingester is the slice of the ingestion pipeline the scheduler needs.
type Ingester interface {
	Ingest(ctx context.Context, symbol string, docs []domain.RawDocument) error
}

// Scheduler drives periodic refreshes. Failures are logged and the
// schedule keeps running; a broken feed must not stop the others.
type Scheduler struct {
	cron     *cron.Cron
	ingester Ingester
	dir      domain.Directory
	logger   *slog.Logger
}

func New(ingester Ingester, dir domain.Directory, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:     cron.New(),
		ingester: ingester,
		dir:      dir,
		logger:   logger,
	}
}

// TrackSymbols re-ingests each symbol on the given cron spec. Symbols
// refresh sequentially within one tick; the pipeline already
// parallelizes per call.
func (s *Scheduler) TrackSymbols(spec string, symbols []string, fetch FetchFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		for _, symbol := range symbols {
			docs, err := fetch(ctx, symbol)
			if err != nil {
				s.logger.Warn("document fetch failed", "symbol", symbol, "error", err)
				continue
			}
			if err := s.ingester.Ingest(ctx, symbol, docs); err != nil {
				s.logger.Warn("scheduled ingest failed", "symbol", symbol, "error", err)
			}
		}
	})
	return err
}

// TrackDirectory replaces the company directory on the given cron spec.
func (s *Scheduler) TrackDirectory(spec string, fetch DirectoryFetchFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		records, err := fetch(ctx)
		if err != nil {
			s.logger.Warn("company feed fetch failed", "error", err)
			return
		}
		if err := s.dir.ReplaceAll(ctx, records); err != nil {
			s.logger.Warn("directory refresh failed", "error", err)
			return
		}
		s.logger.Info("company directory refreshed", "companies", len(records))
	})
	return err
}

// Start begins firing scheduled jobs in their own goroutines.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops the schedule and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
