package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/location"
	"stockledger/internal/domain/snapshot"
	"stockledger/internal/testutil/memstore"
)

type fixture struct {
	store     *memstore.Store
	ledger    *ledger.Service
	locations *location.Service
	svc       *snapshot.Service
}

func newFixture() *fixture {
	st := memstore.New()
	clock := memstore.NewClock(time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC))
	locations := location.NewService(st.Locations(), st)
	ledgerSvc := ledger.NewService(ledger.ServiceConfig{
		Items:     st.Items(),
		Movements: st.Movements(),
		TxManager: st,
		Events:    st.Publisher(),
		Audit:     st.Audit(),
		Clock:     clock.Now,
	})
	svc := snapshot.NewService(st.Snapshots(), st.Items(), locations, st, st.Publisher())
	ledgerSvc.Hooks().On(domain.AfterUpdate, svc.OnMovement)
	ledgerSvc.Hooks().On(domain.AfterDelete, svc.OnMovement)
	return &fixture{store: st, ledger: ledgerSvc, locations: locations, svc: svc}
}

func (f *fixture) receive(t *testing.T, ctx context.Context, code, at string, qty int64) *ledger.StockItem {
	t.Helper()
	item := ledger.NewStockItem(code, code)
	require.NoError(t, f.ledger.CreateItem(ctx, item))
	res, err := f.ledger.Receipt(ctx, ledger.Command{ItemID: item.ID, To: at, Quantity: qty})
	require.NoError(t, err)
	return res.Item
}

func TestSync_BuildsRecords(t *testing.T) {
	ctx := t.Context()
	f := newFixture()
	require.NoError(t, f.locations.Create(ctx, location.NewLocation("A1", "Aisle 1", "north")))
	a := f.receive(t, ctx, "SKU-A", "A1", 10)
	_, err := f.ledger.Transfer(ctx, ledger.Command{ItemID: a.ID, From: "A1", To: "B2", Quantity: 4})
	require.NoError(t, err)
	f.receive(t, ctx, "SKU-B", "B2", 3)

	res, err := f.svc.Sync(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Items)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, int64(3), res.Changed)
	assert.Equal(t, 1, res.LocationsCreated)

	rec, err := f.svc.Get(ctx, a.ID, "Aisle 1 (A1)", "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), rec.Quantity)
	rec, err = f.svc.Get(ctx, a.ID, "B2", "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Quantity)

	b2, err := f.locations.GetByCode(ctx, "B2")
	require.NoError(t, err)
	assert.True(t, b2.AutoCreated)

	assert.Len(t, f.store.EventsOfType(domain.EventSnapshotSynced), 1)
}

func TestSync_Idempotent(t *testing.T) {
	ctx := t.Context()
	f := newFixture()
	f.receive(t, ctx, "SKU-A", "A1", 10)

	first, err := f.svc.Sync(ctx)
	require.NoError(t, err)
	before, err := f.svc.List(ctx, snapshot.Filter{})
	require.NoError(t, err)

	second, err := f.svc.Sync(ctx)
	require.NoError(t, err)
	after, err := f.svc.List(ctx, snapshot.Filter{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Changed)
	assert.Zero(t, second.Changed)
	assert.Zero(t, second.LocationsCreated)
	assert.Equal(t, before.Items, after.Items)
}

func TestSync_PlaceholderForUnplacedStock(t *testing.T) {
	ctx := t.Context()
	f := newFixture()
	legacy := ledger.NewStockItem("SKU-OLD", "Legacy")
	legacy.Quantity = 8
	f.store.Items().Put(legacy)

	res, err := f.svc.Sync(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, res.LocationsCreated)
	rec, err := f.svc.Get(ctx, legacy.ID, location.Placeholder, "")
	require.NoError(t, err)
	assert.Equal(t, int64(8), rec.Quantity)

	loc, err := f.locations.GetByCode(ctx, location.Placeholder)
	require.NoError(t, err)
	assert.True(t, loc.AutoCreated)
}

func TestSync_ReflectsLedgerChanges(t *testing.T) {
	ctx := t.Context()
	f := newFixture()
	a := f.receive(t, ctx, "SKU-A", "A1", 10)
	_, err := f.svc.Sync(ctx)
	require.NoError(t, err)

	_, err = f.ledger.Issue(ctx, ledger.Command{ItemID: a.ID, From: "A1", Quantity: 3})
	require.NoError(t, err)
	res, err := f.svc.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Changed)
	rec, err := f.svc.Get(ctx, a.ID, "A1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Quantity)
}

func TestSync_ZeroesMergedDuplicates(t *testing.T) {
	ctx := t.Context()
	f := newFixture()
	a := f.receive(t, ctx, "SKU-A", "A1", 10)

	dup := ledger.NewStockItem("SKU-A", "Duplicate")
	dup.Quantity = 2
	dup.PrimaryLocation = "B2"
	dup.Locations = ledger.Quantities{"B2": 2}
	f.store.Items().Put(dup)

	_, err := f.svc.Sync(ctx)
	require.NoError(t, err)

	_, err = f.ledger.Transfer(ctx, ledger.Command{ItemID: a.ID, From: "A1", To: "B2", Quantity: 1})
	require.NoError(t, err)
	res, err := f.svc.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Zeroed)
	rec, err := f.svc.Get(ctx, dup.ID, "B2", "")
	require.NoError(t, err)
	assert.Zero(t, rec.Quantity)
	rec, err = f.svc.Get(ctx, a.ID, "B2", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Quantity)
}

func TestSyncItem(t *testing.T) {
	ctx := t.Context()
	f := newFixture()
	a := f.receive(t, ctx, "SKU-A", "A1", 5)

	res, err := f.svc.SyncItem(ctx, a.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Items)
	assert.Equal(t, int64(1), res.Changed)

	gone := ledger.NewStockItem("SKU-X", "Gone")
	gone.Active = false
	f.store.Items().Put(gone)
	_, err = f.svc.SyncItem(ctx, gone.ID)
	assert.True(t, apperror.HasCode(err, "ITEM_INACTIVE"))
}

func TestOnMovement_StampsLastMovement(t *testing.T) {
	ctx := t.Context()
	f := newFixture()
	a := f.receive(t, ctx, "SKU-A", "A1", 5)
	_, err := f.svc.Sync(ctx)
	require.NoError(t, err)

	res, err := f.ledger.Issue(ctx, ledger.Command{ItemID: a.ID, From: "A1", Quantity: 1})
	require.NoError(t, err)

	rec, err := f.svc.Get(ctx, a.ID, "A1", "")
	require.NoError(t, err)
	require.NotNil(t, rec.LastMovementAt)
	require.NotNil(t, res.Movement.CompletedAt)
	assert.Equal(t, *res.Movement.CompletedAt, *rec.LastMovementAt)
	// the snapshot quantity waits for the next sync
	assert.Equal(t, int64(5), rec.Quantity)
}

func TestList_Filters(t *testing.T) {
	ctx := t.Context()
	f := newFixture()
	require.NoError(t, f.locations.Create(ctx, location.NewLocation("A1", "", "north")))
	require.NoError(t, f.locations.Create(ctx, location.NewLocation("B2", "", "south")))
	a := f.receive(t, ctx, "SKU-A", "A1", 5)
	_, err := f.ledger.Transfer(ctx, ledger.Command{ItemID: a.ID, From: "A1", To: "B2", Quantity: 5})
	require.NoError(t, err)
	_, err = f.svc.Sync(ctx)
	require.NoError(t, err)

	south, err := f.svc.List(ctx, snapshot.Filter{Zones: []string{"south"}})
	require.NoError(t, err)
	require.Len(t, south.Items, 1)
	assert.Equal(t, "B2", south.Items[0].LocationCode)

	nonZero, err := f.svc.List(ctx, snapshot.Filter{NonZero: true})
	require.NoError(t, err)
	require.Len(t, nonZero.Items, 1)

	byLabel, err := f.svc.List(ctx, snapshot.Filter{LocationCode: "Aisle (A1)"})
	require.NoError(t, err)
	require.Len(t, byLabel.Items, 1)
	assert.Zero(t, byLabel.Items[0].Quantity)
}
