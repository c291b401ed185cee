package numberpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totalhack/zar-numberpool/apierrors"
	"github.com/totalhack/zar-numberpool/catalog"
	"github.com/totalhack/zar-numberpool/config"
	"github.com/totalhack/zar-numberpool/kvstore"
)

type fakeCatalog struct {
	pools   []catalog.Pool
	numbers map[int64][]catalog.PoolNumber
}

func (f *fakeCatalog) ActivePools(_ context.Context) ([]catalog.Pool, error) { return f.pools, nil }

func (f *fakeCatalog) PoolNumbers(_ context.Context, poolID int64) ([]catalog.PoolNumber, error) {
	return f.numbers[poolID], nil
}

func newTestEngine(cfg *config.Settings) (*Engine, *kvstore.MemStore) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	store := kvstore.NewMemStore()
	return NewEngine(store, &fakeCatalog{}, cfg), store
}

func TestLeaseNumber_Basic(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001", "14155550002"}))

	number, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-1"}})
	require.NoError(t, err)
	assert.Contains(t, []string{"14155550001", "14155550002"}, number)

	status, nc, err := e.NumberStatus(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, StatusTaken, status)
	assert.Equal(t, int64(1), nc.PoolID)
	assert.Equal(t, "sid-1", nc.RequestContext.SID())
}

func TestLeaseNumber_InvalidTargetNumber(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001"}))

	_, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, TargetNumber: "19999999999"})
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.KindNumberNotFound))
}

func TestLeaseNumber_TakeExpiredNumber(t *testing.T) {
	e, _ := newTestEngine(nil)
	e.cfg.PoolCacheExpiration = time.Minute
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001"}))

	base := time.Now()
	e.now = func() time.Time { return base }
	number, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-a"}})
	require.NoError(t, err)

	e.now = func() time.Time { return base.Add(2 * time.Minute) }
	number2, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, TargetNumber: number, RequestContext: RequestContext{"sid": "sid-b"}})
	require.NoError(t, err)
	assert.Equal(t, number, number2)

	_, nc, err := e.NumberStatus(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, "sid-b", nc.RequestContext.SID())
}

func TestLeaseNumber_MaxRenewalExceeded(t *testing.T) {
	e, _ := newTestEngine(nil)
	e.cfg.MaxRenewalAge = time.Minute
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001"}))

	base := time.Now()
	e.now = func() time.Time { return base }
	_, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-a"}})
	require.NoError(t, err)

	e.now = func() time.Time { return base.Add(30 * time.Second) }
	_, err = e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-a"}})
	require.NoError(t, err)

	e.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-a"}})
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.KindMaxRenewalExceeded))
}

func TestLeaseNumber_PoolEmpty(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001"}))

	_, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-a"}})
	require.NoError(t, err)

	_, err = e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-b"}})
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.KindPoolEmpty))
}

func TestLeaseNumber_RenewWithSessionID(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001"}))

	number, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-a", "ip": "1.1.1.1"}})
	require.NoError(t, err)

	number2, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-a", "user_agent": "ua"}})
	require.NoError(t, err)
	assert.Equal(t, number, number2)

	_, nc, err := e.NumberStatus(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1", nc.RequestContext.IP())
	assert.Equal(t, "ua", nc.RequestContext.UserAgent())
}

func TestLeaseNumber_MultiPoolSID(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001"}))
	require.NoError(t, e.addNumbers(ctx, 2, []string{"14155550002"}))

	n1, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "shared-sid"}})
	require.NoError(t, err)
	n2, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 2, RequestContext: RequestContext{"sid": "shared-sid"}})
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)

	again1, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "shared-sid"}})
	require.NoError(t, err)
	assert.Equal(t, n1, again1)
}

func TestLeaseNumber_AreaCode(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	pool := catalog.Pool{ID: 1, Name: "ac-pool", Active: true, Properties: `{"area_code":"all","fallback_area_code":"415"}`}
	require.NoError(t, e.SetPoolProperties(ctx, pool))
	require.NoError(t, e.addNumbers(ctx, 1, []string{"41555501", "21255501"}))

	number, err := e.LeaseNumber(ctx, LeaseInput{
		PoolID:          1,
		RequestContext:  RequestContext{"sid": "sid-a"},
		TargetAreaCodes: []string{"212"},
	})
	require.NoError(t, err)
	assert.Equal(t, "21255501", number)
}

func TestLeaseNumber_AreaCodeFallsBackToFallbackCode(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	pool := catalog.Pool{ID: 1, Name: "ac-pool", Active: true, Properties: `{"area_code":"all","fallback_area_code":"415"}`}
	require.NoError(t, e.SetPoolProperties(ctx, pool))
	require.NoError(t, e.addNumbers(ctx, 1, []string{"41555501"}))

	number, err := e.LeaseNumber(ctx, LeaseInput{
		PoolID:          1,
		RequestContext:  RequestContext{"sid": "sid-a"},
		TargetAreaCodes: []string{"212"},
	})
	require.NoError(t, err)
	assert.Equal(t, "41555501", number)
}

func TestUpdateNumber_SessionKeyMismatchLeavesContextUnchanged(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001"}))

	number, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-a"}})
	require.NoError(t, err)

	nc, err := e.UpdateNumber(ctx, 1, number, RequestContext{"sid": "sid-b", "ip": "9.9.9.9"}, true)
	require.NoError(t, err)
	assert.Equal(t, "sid-a", nc.RequestContext.SID())
	assert.Empty(t, nc.RequestContext.IP())
}

func TestUpdateNumber_Merge(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001"}))

	number, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, RequestContext: RequestContext{"sid": "sid-a", "ip": "1.1.1.1"}})
	require.NoError(t, err)

	nc, err := e.UpdateNumber(ctx, 1, number, RequestContext{"sid": "sid-a", "user_agent": "ua"}, true)
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1", nc.RequestContext.IP())
	assert.Equal(t, "ua", nc.RequestContext.UserAgent())
}

func TestInitPools_ReinitPreservesLease(t *testing.T) {
	store := kvstore.NewMemStore()
	reader := &fakeCatalog{
		pools: []catalog.Pool{{ID: 1, Name: "p1", Active: true, Properties: "{}"}},
		numbers: map[int64][]catalog.PoolNumber{
			1: {{ID: 1, PoolID: 1, Number: "14155550001"}, {ID: 2, PoolID: 1, Number: "14155550002"}},
		},
	}
	e := NewEngine(store, reader, config.Defaults())
	ctx := context.Background()

	errs, err := e.InitPools(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, errs)

	free, err := store.SMembers(ctx, freeKey(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"14155550001", "14155550002"}, free)

	_, err = e.LeaseNumber(ctx, LeaseInput{PoolID: 1, TargetNumber: "14155550002", RequestContext: RequestContext{"sid": "sid-a"}})
	require.NoError(t, err)

	reader.numbers[1] = []catalog.PoolNumber{
		{ID: 2, PoolID: 1, Number: "14155550002"},
		{ID: 3, PoolID: 1, Number: "14155550003"},
	}

	errs, err = e.InitPools(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, errs)

	free, err = store.SMembers(ctx, freeKey(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"14155550003"}, free)

	taken, err := store.ZRange(ctx, takenKey(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"14155550002"}, taken)
}

func TestGetAllPoolStats(t *testing.T) {
	store := kvstore.NewMemStore()
	reader := &fakeCatalog{pools: []catalog.Pool{{ID: 1, Name: "p1", Active: true, Properties: "{}"}}}
	e := NewEngine(store, reader, config.Defaults())
	ctx := context.Background()
	require.NoError(t, e.addNumbers(ctx, 1, []string{"14155550001", "14155550002"}))

	_, err := e.LeaseNumber(ctx, LeaseInput{PoolID: 1, TargetNumber: "14155550001", RequestContext: RequestContext{"sid": "sid-a"}})
	require.NoError(t, err)

	stats, err := e.GetAllPoolStats(ctx, true)
	require.NoError(t, err)
	s, ok := stats["1/p1"]
	require.True(t, ok)
	assert.Equal(t, 1, s.Free)
	assert.Equal(t, 1, s.Taken)
	assert.Equal(t, 2, s.Total)
	assert.Contains(t, s.Contexts, "14155550001")
}
