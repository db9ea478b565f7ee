// Package archive stores every accepted measurement in sqlite for
// long-term trend queries. It complements the daily CSV data log: the
// log is the durable record, the archive answers aggregate questions.
package archive

import (
	"context"
	"time"

	"codeberg.org/farowl/co2mond/internal/errors"
	"codeberg.org/farowl/co2mond/internal/logger"
	"codeberg.org/farowl/co2mond/internal/measure"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation used when the archive is disabled
type noopCollector struct{}

func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Archive disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, err // Already wrapped with appropriate error
	}

	logger.Debug().
		Str("db_path", cfg.DBPath).
		Msg("Archive service initialized")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Record(ctx context.Context, m measure.Measurement) error {
	errFactory := errors.New()

	if m.Timestamp.IsZero() {
		return errFactory.New(ErrInvalidRecord)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Store(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

func (s *service) HourlyStats(ctx context.Context, since time.Time) ([]HourlyStat, error) {
	return s.repo.HourlyStats(ctx, since)
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (*noopCollector) Record(context.Context, measure.Measurement) error {
	return nil
}

func (*noopCollector) HourlyStats(context.Context, time.Time) ([]HourlyStat, error) {
	return nil, nil
}

func (*noopCollector) Close() error {
	return nil
}
