package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	alertapp "github.com/medrx/backend/internal/application/alert"
	fulfillmentapp "github.com/medrx/backend/internal/application/fulfillment"
	"github.com/medrx/backend/internal/domain/alert"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/event"
	"github.com/medrx/backend/internal/infrastructure/migration"
	"github.com/medrx/backend/internal/infrastructure/persistence"
	"github.com/medrx/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stack struct {
	db       *TestDB
	batches  *persistence.GormBatchRepository
	ledger   *persistence.GormLedgerRepository
	requests *persistence.GormRequestRepository
	alerts   *persistence.GormAlertRepository
	manager  *fulfillmentapp.Manager
	recorder *testutil.EventRecorder
	facility uuid.UUID
	actor    uuid.UUID
}

func newStack(t *testing.T, tdb *TestDB, cfg fulfillmentapp.Config) *stack {
	t.Helper()
	log := zaptest.NewLogger(t)

	s := &stack{
		db:       tdb,
		batches:  persistence.NewGormBatchRepository(tdb.DB),
		ledger:   persistence.NewGormLedgerRepository(tdb.DB),
		requests: persistence.NewGormRequestRepository(tdb.DB).WithLockTimeout(cfg.LockTimeout),
		alerts:   persistence.NewGormAlertRepository(tdb.DB),
		recorder: testutil.NewEventRecorder(),
		facility: uuid.New(),
		actor:    uuid.New(),
	}

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(s.recorder)
	bus.Subscribe(alertapp.NewDispatcher(s.alerts, alertapp.DefaultConfig(), log).WithBatchFlags(s.batches))

	scope := persistence.NewGormTransactionScope(tdb.DB).WithRequestLockTimeout(cfg.LockTimeout)
	s.manager = fulfillmentapp.NewManager(scope, inventory.NewAllocator(s.batches), s.requests, s.ledger, bus, cfg, log)
	return s
}

func (s *stack) receive(t *testing.T, med uuid.UUID, qty, threshold int64, receivedAt time.Time) *inventory.InventoryBatch {
	t.Helper()
	b, err := inventory.NewInventoryBatch(inventory.ReceiptParams{
		FacilityID:       s.facility,
		MedicationID:     med,
		MedicationName:   "Metformin 850mg",
		LotNumber:        "MF-" + receivedAt.Format("0102"),
		Quantity:         qty,
		ReorderThreshold: threshold,
		UnitCost:         decimal.RequireFromString("0.1200"),
		ReceivedAt:       receivedAt,
	})
	require.NoError(t, err)
	require.NoError(t, s.batches.Create(context.Background(), b))
	return b
}

func (s *stack) fulfill(t *testing.T, items ...fulfillment.LineItem) *fulfillmentapp.Outcome {
	t.Helper()
	outcome, err := s.manager.Fulfill(context.Background(), fulfillmentapp.Command{
		RequestID:  uuid.New(),
		PatientID:  uuid.New(),
		FacilityID: s.facility,
		ActorID:    s.actor,
		LineItems:  items,
	})
	require.NoError(t, err)
	return outcome
}

func (s *stack) quantity(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	b, err := s.batches.FindByID(context.Background(), id)
	require.NoError(t, err)
	return b.Quantity
}

func TestMigrations_DownAndUpAgain(t *testing.T) {
	tdb := NewTestDB(t)
	m, err := migration.New(tdb.SqlDB, zaptest.NewLogger(t))
	require.NoError(t, err)

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, m.Up())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestFulfillment_FIFOAcrossBatchesWithLedger(t *testing.T) {
	tdb := NewTestDB(t)
	s := newStack(t, tdb, fulfillmentapp.DefaultConfig())
	med := uuid.New()
	base := time.Now().Add(-72 * time.Hour)

	older := s.receive(t, med, 5, 0, base)
	newer := s.receive(t, med, 10, 0, base.Add(24*time.Hour))

	outcome := s.fulfill(t, fulfillment.LineItem{MedicationID: med, Quantity: 8})
	require.True(t, outcome.Fulfilled(), outcome.Reason)

	assert.Equal(t, int64(0), s.quantity(t, older.ID))
	assert.Equal(t, int64(7), s.quantity(t, newer.ID))

	drained, err := s.batches.FindByID(context.Background(), older.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.BatchStatusDepleted, drained.Status)

	entries, err := s.ledger.ListByReference(context.Background(), outcome.RequestID.String())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, e.QuantityBefore-e.QuantityMoved, e.QuantityAfter)
		assert.Equal(t, s.quantity(t, e.BatchID), e.QuantityAfter)
		assert.Equal(t, s.actor, e.ActorID)
	}

	stored, err := s.requests.FindByID(context.Background(), outcome.RequestID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.RequestStatusFulfilled, stored.Status)
	assert.Len(t, s.recorder.OfType(fulfillment.EventTypeRequestFulfilled), 1)
}

func TestFulfillment_MultiLineIsAllOrNothing(t *testing.T) {
	tdb := NewTestDB(t)
	s := newStack(t, tdb, fulfillmentapp.DefaultConfig())
	plenty, scarce := uuid.New(), uuid.New()
	now := time.Now().Add(-time.Hour)

	a := s.receive(t, plenty, 50, 0, now)
	b := s.receive(t, scarce, 2, 0, now)

	outcome := s.fulfill(t,
		fulfillment.LineItem{MedicationID: plenty, Quantity: 10},
		fulfillment.LineItem{MedicationID: scarce, Quantity: 3},
	)
	assert.False(t, outcome.Fulfilled())
	assert.False(t, outcome.Transient)
	require.Len(t, outcome.Shortages, 1)
	assert.Equal(t, scarce, outcome.Shortages[0].MedicationID)

	assert.Equal(t, int64(50), s.quantity(t, a.ID))
	assert.Equal(t, int64(2), s.quantity(t, b.ID))

	entries, err := s.ledger.ListByReference(context.Background(), outcome.RequestID.String())
	require.NoError(t, err)
	assert.Empty(t, entries)

	stored, err := s.requests.FindByID(context.Background(), outcome.RequestID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.RequestStatusRejected, stored.Status)
}

func TestFulfillment_ConcurrentApprovalsNeverOversell(t *testing.T) {
	tdb := NewTestDB(t)
	cfg := fulfillmentapp.DefaultConfig()
	cfg.TransientBackoff = 5 * time.Millisecond
	s := newStack(t, tdb, cfg)
	med := uuid.New()
	batch := s.receive(t, med, 10, 0, time.Now().Add(-time.Hour))

	const workers = 8
	outcomes := make([]*fulfillmentapp.Outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := s.manager.Fulfill(context.Background(), fulfillmentapp.Command{
				RequestID:  uuid.New(),
				PatientID:  uuid.New(),
				FacilityID: s.facility,
				ActorID:    s.actor,
				LineItems:  []fulfillment.LineItem{{MedicationID: med, Quantity: 3}},
			})
			if assert.NoError(t, err) {
				outcomes[i] = outcome
			}
		}(i)
	}
	wg.Wait()

	fulfilled := 0
	for _, o := range outcomes {
		require.NotNil(t, o)
		if o.Fulfilled() {
			fulfilled++
		}
	}
	assert.GreaterOrEqual(t, fulfilled, 1)
	assert.LessOrEqual(t, fulfilled, 3)
	assert.Equal(t, int64(10-3*fulfilled), s.quantity(t, batch.ID))

	entries, total, err := s.ledger.ListByBatch(context.Background(), batch.ID, shared.Filter{Page: 1, PageSize: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(fulfilled), total)
	for _, e := range entries {
		assert.Equal(t, e.QuantityBefore-e.QuantityMoved, e.QuantityAfter)
	}
}

func TestFulfillment_LockTimeoutIsTransientRejection(t *testing.T) {
	tdb := NewTestDB(t)
	cfg := fulfillmentapp.DefaultConfig()
	cfg.LockTimeout = 200 * time.Millisecond
	cfg.MaxTransientRetries = 0
	s := newStack(t, tdb, cfg)
	med := uuid.New()
	batch := s.receive(t, med, 10, 0, time.Now().Add(-time.Hour))

	holder := tdb.DB.Begin()
	require.NoError(t, holder.Error)
	t.Cleanup(func() { holder.Rollback() })
	require.NoError(t, holder.Exec("SELECT id FROM inventory_batches WHERE id = ? FOR UPDATE", batch.ID).Error)

	outcome := s.fulfill(t, fulfillment.LineItem{MedicationID: med, Quantity: 4})
	assert.False(t, outcome.Fulfilled())
	assert.True(t, outcome.Transient)
	assert.Contains(t, outcome.Reason, fulfillmentapp.TransientReasonPrefix)

	assert.True(t, outcome.Retryable)

	require.NoError(t, holder.Rollback().Error)
	assert.Equal(t, int64(10), s.quantity(t, batch.ID))

	rejected := testutil.EventsOf[*fulfillment.RequestRejectedEvent](s.recorder)
	require.Len(t, rejected, 1)
	assert.True(t, rejected[0].Transient)

	retried, err := s.manager.Fulfill(context.Background(), fulfillmentapp.Command{
		RequestID:  outcome.RequestID,
		PatientID:  uuid.New(),
		FacilityID: s.facility,
		ActorID:    s.actor,
		LineItems:  []fulfillment.LineItem{{MedicationID: med, Quantity: 4}},
	})
	require.NoError(t, err)
	assert.True(t, retried.Fulfilled(), retried.Reason)
	assert.Equal(t, int64(6), s.quantity(t, batch.ID))

	stored, err := s.requests.FindByID(context.Background(), outcome.RequestID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.RequestStatusFulfilled, stored.Status)
	assert.Equal(t, 1, stored.TransientRejections)
}

func TestAlerts_DeduplicatedWithinWindow(t *testing.T) {
	tdb := NewTestDB(t)
	s := newStack(t, tdb, fulfillmentapp.DefaultConfig())
	med := uuid.New()
	batch := s.receive(t, med, 20, 10, time.Now().Add(-time.Hour))

	require.True(t, s.fulfill(t, fulfillment.LineItem{MedicationID: med, Quantity: 12}).Fulfilled())
	require.True(t, s.fulfill(t, fulfillment.LineItem{MedicationID: med, Quantity: 3}).Fulfilled())

	since := time.Now().Add(-time.Hour)
	var alerts []alert.LowStockAlert
	require.Eventually(t, func() bool {
		var err error
		alerts, _, err = s.alerts.ListSince(context.Background(), since, shared.Filter{Page: 1, PageSize: 10})
		return err == nil && len(alerts) == 2
	}, 2*time.Second, 20*time.Millisecond)

	audiences := []alert.Audience{alerts[0].Audience, alerts[1].Audience}
	assert.ElementsMatch(t, []alert.Audience{alert.AudienceAdmin, alert.AudienceInventoryStaff}, audiences)
	for _, a := range alerts {
		assert.Equal(t, alert.DedupKey(med, s.facility), a.DedupKey)
	}

	flagged, err := s.batches.FindByID(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.True(t, flagged.AlertSent)

	// the unique index rejects a second record for the same key, audience and window
	dup, err := alert.NewLowStockAlert(alert.Trigger{
		BatchID:      batch.ID,
		FacilityID:   s.facility,
		MedicationID: med,
		Quantity:     5,
	}, alerts[0].Audience, alerts[0].CreatedAt, 24*time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, s.alerts.Create(context.Background(), dup), shared.ErrDuplicateAlert)
}
