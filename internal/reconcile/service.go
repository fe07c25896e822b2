// Package reconcile answers aging queries from stored invoice facts.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/aging"
	"github.com/RizaruAbdulhadi/bogor-dashboard-app-sub000/internal/platform/httpx"
)

var (
	// ErrEmptyDate is returned when no end date is given.
	ErrEmptyDate = fmt.Errorf("%w: end_date is required", httpx.ErrValidation)
	// ErrInvalidDate is returned for an end date that is not YYYY-MM-DD.
	ErrInvalidDate = fmt.Errorf("%w: end_date must be YYYY-MM-DD", httpx.ErrValidation)
	// ErrInvalidBasis is returned for an unknown aging basis.
	ErrInvalidBasis = fmt.Errorf("%w: basis must be received or invoice", httpx.ErrValidation)
)

// AgingQuery is the caller input for an aging report.
type AgingQuery struct {
	EndDate string `validate:"required,datetime=2006-01-02"`
	Basis   string `validate:"omitempty,oneof=received invoice"`
}

// Result wraps a report with delivery metadata.
type Result struct {
	Report aging.Report
	// Degraded is set when storage failed and Report is the empty report.
	Degraded bool
}

// FactRepository loads invoice facts.
type FactRepository interface {
	FindInvoiceFacts(ctx context.Context, maxDate time.Time, policy aging.Policy) ([]aging.InvoiceFact, error)
}

// Service builds aging reports with caching and request collapsing.
type Service struct {
	repo          FactRepository
	cache         *Cache
	logger        *slog.Logger
	validate      *validator.Validate
	defaultPolicy aging.Policy
	group         singleflight.Group
}

// NewService constructs the façade. cache may be nil.
func NewService(repo FactRepository, cache *Cache, logger *slog.Logger, defaultPolicy aging.Policy) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultPolicy == "" {
		defaultPolicy = aging.PolicyReceivedDateExcludeNulls
	}
	return &Service{
		repo:          repo,
		cache:         cache,
		logger:        logger,
		validate:      validator.New(),
		defaultPolicy: defaultPolicy,
	}
}

// GetAgingReport validates q and returns the report as of its end date.
// Storage failures yield an empty report flagged as degraded, not an error.
func (s *Service) GetAgingReport(ctx context.Context, q AgingQuery) (Result, error) {
	q.EndDate = strings.TrimSpace(q.EndDate)
	q.Basis = strings.ToLower(strings.TrimSpace(q.Basis))
	if err := s.validate.Struct(q); err != nil {
		return Result{}, queryError(err)
	}
	day, err := time.Parse(time.DateOnly, q.EndDate)
	if err != nil {
		return Result{}, ErrInvalidDate
	}
	policy := s.defaultPolicy
	if q.Basis != "" {
		if policy, err = aging.ParsePolicy(q.Basis); err != nil {
			return Result{}, ErrInvalidBasis
		}
	}

	key, err := s.cache.BuildKey(ctx, "aging", string(policy), q.EndDate)
	if err != nil {
		s.logger.Warn("aging cache key", slog.Any("error", err))
		key = strings.Join([]string{"aging", string(policy), q.EndDate}, ":")
	}

	ch := s.group.DoChan(key, func() (any, error) {
		return s.load(context.WithoutCancel(ctx), key, day, policy)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger.Error("aging report",
				slog.String("end_date", q.EndDate),
				slog.String("basis", string(policy)),
				slog.Any("error", res.Err))
			return Result{Report: aging.Aggregate(nil, day, policy), Degraded: true}, nil
		}
		return Result{Report: res.Val.(aging.Report)}, nil
	}
}

func (s *Service) load(ctx context.Context, key string, day time.Time, policy aging.Policy) (aging.Report, error) {
	loader := func(ctx context.Context) (any, error) {
		facts, err := s.repo.FindInvoiceFacts(ctx, day, policy)
		if err != nil {
			return nil, &loaderError{err: err}
		}
		return aging.Aggregate(facts, day, policy), nil
	}
	var report aging.Report
	err := s.cache.FetchJSON(ctx, key, &report, loader)
	if err == nil {
		return report, nil
	}
	var storageErr *loaderError
	if errors.As(err, &storageErr) {
		return aging.Report{}, storageErr.err
	}
	// Cache trouble only: compute without it.
	s.logger.Warn("aging cache unavailable", slog.Any("error", err))
	value, err := loader(ctx)
	if err != nil {
		return aging.Report{}, err
	}
	return value.(aging.Report), nil
}

// loaderError separates storage failures from cache failures.
type loaderError struct {
	err error
}

func (e *loaderError) Error() string { return e.err.Error() }
func (e *loaderError) Unwrap() error { return e.err }

func queryError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "EndDate" && fe.Tag() == "required":
		return ErrEmptyDate
	case fe.Field() == "EndDate":
		return ErrInvalidDate
	default:
		return ErrInvalidBasis
	}
}
