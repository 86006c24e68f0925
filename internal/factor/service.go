package factor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// RepositoryPort describes the reference table store.
type RepositoryPort interface {
	List(ctx context.Context) ([]ReferencePoint, error)
	Bounds(ctx context.Context, costInMillions decimal.Decimal) (ReferencePoint, *ReferencePoint, error)
	Replace(ctx context.Context, points []ReferencePoint) error
}

// Service resolves factors for BOQ totals.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the factor service. cache may be nil, in which case the
// bounding rows are fetched from the store on every lookup.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Table returns the reference table sorted by threshold.
func (s *Service) Table(ctx context.Context) ([]ReferencePoint, error) {
	points, err := s.cache.Table(ctx, s.repo.List)
	if err != nil {
		return nil, err
	}
	return sortedCopy(points), nil
}

// Factor returns the interpolated factor for a base cost.
func (s *Service) Factor(ctx context.Context, totalBaseCost decimal.Decimal) (decimal.Decimal, error) {
	if totalBaseCost.IsNegative() {
		return decimal.Zero, fmt.Errorf("factor: negative base cost: %w", ErrInvalidReference)
	}
	if s.cache == nil {
		a := CostInMillions(totalBaseCost)
		lower, upper, err := s.repo.Bounds(ctx, a)
		if err != nil {
			return decimal.Zero, err
		}
		return InterpolateBounds(a, lower, upper), nil
	}
	table, err := s.cache.Table(ctx, s.repo.List)
	if err != nil {
		return decimal.Zero, err
	}
	f, err := Interpolate(totalBaseCost, table)
	if err != nil {
		s.logger.Error("factor lookup failed", slog.String("base", totalBaseCost.String()), slog.Any("error", err))
		return decimal.Zero, err
	}
	return f, nil
}

// Totals resolves the factor and derives the displayed totals.
// A zero base cost skips the lookup and reports Computed=false.
func (s *Service) Totals(ctx context.Context, totalBaseCost decimal.Decimal) (Totals, error) {
	if totalBaseCost.IsZero() {
		return Totals{Base: decimal.Zero, Factor: decimal.Zero, WithFactor: decimal.Zero, WithVAT: decimal.Zero}, nil
	}
	f, err := s.Factor(ctx, totalBaseCost)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(totalBaseCost, f), nil
}

// Import validates and replaces the reference table, then drops the cache.
func (s *Service) Import(ctx context.Context, points []ReferencePoint) error {
	if err := Validate(points); err != nil {
		return err
	}
	if err := s.repo.Replace(ctx, sortedCopy(points)); err != nil {
		return fmt.Errorf("factor: replace table: %w", err)
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("factor cache invalidate", slog.Any("error", err))
	}
	s.logger.Info("factor table imported", slog.Int("rows", len(points)))
	return nil
}

// Warm reloads the table into the cache.
func (s *Service) Warm(ctx context.Context) (int, error) {
	if err := s.cache.Invalidate(ctx); err != nil {
		return 0, err
	}
	points, err := s.Table(ctx)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, ErrEmptyReferenceTable
	}
	return len(points), nil
}

// Validate checks that thresholds are positive and unique and factors positive.
func Validate(points []ReferencePoint) error {
	if len(points) == 0 {
		return ErrEmptyReferenceTable
	}
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		if !p.Threshold.IsPositive() || !p.Factor.IsPositive() {
			return fmt.Errorf("%w: threshold %s factor %s", ErrInvalidReference, p.Threshold, p.Factor)
		}
		key := p.Threshold.String()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate threshold %s", ErrInvalidReference, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
