package factor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ductline/ductline/internal/shared"
)

type memoryFactorRepo struct {
	mu        sync.Mutex
	points    []ReferencePoint
	listCalls atomic.Int32
	err       error
}

func (m *memoryFactorRepo) List(ctx context.Context) ([]ReferencePoint, error) {
	m.listCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]ReferencePoint(nil), m.points...), nil
}

func (m *memoryFactorRepo) Bounds(ctx context.Context, a decimal.Decimal) (ReferencePoint, *ReferencePoint, error) {
	points, err := m.List(ctx)
	if err != nil {
		return ReferencePoint{}, nil, err
	}
	return SelectBounds(a, points)
}

func (m *memoryFactorRepo) Replace(ctx context.Context, points []ReferencePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append([]ReferencePoint(nil), points...)
	return nil
}

func newCachedService(t *testing.T, repo *memoryFactorRepo) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute), nil), mr
}

func TestServiceTotalsUsesCache(t *testing.T) {
	repo := &memoryFactorRepo{points: sampleTable()}
	svc, mr := newCachedService(t, repo)

	totals, err := svc.Totals(context.Background(), d("7500000"))
	require.NoError(t, err)
	assert.True(t, totals.Factor.Equal(d("1.2375")))
	assert.True(t, mr.Exists(tableCacheKey))

	_, err = svc.Totals(context.Background(), d("12000000"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.listCalls.Load())
}

func TestServiceTotalsZeroBaseSkipsLookup(t *testing.T) {
	repo := &memoryFactorRepo{}
	svc := NewService(repo, nil, nil)
	totals, err := svc.Totals(context.Background(), decimal.Zero)
	require.NoError(t, err)
	assert.False(t, totals.Computed)
	assert.Equal(t, int32(0), repo.listCalls.Load())
}

func TestServiceWithoutCacheUsesBounds(t *testing.T) {
	repo := &memoryFactorRepo{points: sampleTable()}
	svc := NewService(repo, nil, nil)
	f, err := svc.Factor(context.Background(), d("7500000"))
	require.NoError(t, err)
	assert.True(t, f.Equal(d("1.2375")))
}

func TestServiceEmptyTable(t *testing.T) {
	svc, mr := newCachedService(t, &memoryFactorRepo{})
	_, err := svc.Totals(context.Background(), d("1000000"))
	assert.ErrorIs(t, err, ErrEmptyReferenceTable)
	assert.False(t, mr.Exists(tableCacheKey))
}

func TestServiceNegativeBase(t *testing.T) {
	svc := NewService(&memoryFactorRepo{points: sampleTable()}, nil, nil)
	_, err := svc.Factor(context.Background(), d("-1"))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceImportInvalidatesCache(t *testing.T) {
	repo := &memoryFactorRepo{points: sampleTable()}
	svc, mr := newCachedService(t, repo)
	_, err := svc.Table(context.Background())
	require.NoError(t, err)
	require.True(t, mr.Exists(tableCacheKey))

	err = svc.Import(context.Background(), []ReferencePoint{
		{Threshold: d("10"), Factor: d("1.3000")},
		{Threshold: d("5"), Factor: d("1.4000")},
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(tableCacheKey))

	table, err := svc.Table(context.Background())
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.True(t, table[0].Threshold.Equal(d("5")))
}

func TestServiceImportRejectsDuplicates(t *testing.T) {
	svc := NewService(&memoryFactorRepo{}, nil, nil)
	err := svc.Import(context.Background(), []ReferencePoint{
		{Threshold: d("5"), Factor: d("1.2")},
		{Threshold: d("5.0"), Factor: d("1.1")},
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceWarm(t *testing.T) {
	repo := &memoryFactorRepo{points: sampleTable()}
	svc, mr := newCachedService(t, repo)
	n, err := svc.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, mr.Exists(tableCacheKey))
}

func TestServicePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	svc, _ := newCachedService(t, &memoryFactorRepo{err: boom})
	_, err := svc.Factor(context.Background(), d("7500000"))
	assert.ErrorIs(t, err, boom)
}

func TestParseCSV(t *testing.T) {
	points, err := ParseCSV(strings.NewReader("cost_threshold,factor\n5,1.2750\n# comment\n10, 1.2000\n"))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[1].Factor.Equal(d("1.2")))
}

func TestParseCSVRejectsGarbage(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("5,abc\n"))
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = ParseCSV(strings.NewReader("cost_threshold,factor\n"))
	assert.ErrorIs(t, err, ErrEmptyReferenceTable)

	_, err = ParseCSV(strings.NewReader("0,1.2\n"))
	assert.ErrorIs(t, err, shared.ErrValidation)
}
