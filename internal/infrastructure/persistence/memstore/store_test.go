package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/application/unitofwork"
	"github.com/medrx/backend/internal/domain/alert"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBatch(t *testing.T, med, fac uuid.UUID, qty int64) *inventory.InventoryBatch {
	t.Helper()
	b, err := inventory.NewInventoryBatch(inventory.ReceiptParams{
		FacilityID:       fac,
		MedicationID:     med,
		MedicationName:   "Amoxicillin 500mg",
		Quantity:         qty,
		ReorderThreshold: 5,
		UnitCost:         decimal.NewFromFloat(0.25),
	})
	require.NoError(t, err)
	return b
}

func TestStore_CommitAppliesStagedWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	med, fac := uuid.New(), uuid.New()
	b := newBatch(t, med, fac, 10)
	require.NoError(t, s.Batches().Create(ctx, b))

	err := s.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		locked, err := repos.BatchRepo().LockForUpdate(ctx, []uuid.UUID{b.ID}, time.Second)
		require.NoError(t, err)
		require.Len(t, locked, 1)

		before, after, err := locked[0].Deplete(4)
		require.NoError(t, err)
		require.NoError(t, repos.BatchRepo().Save(ctx, &locked[0]))

		entry, err := inventory.NewOutboundEntry(&locked[0], inventory.ReasonFulfillment, 4, before, after, "ref-1", uuid.New())
		require.NoError(t, err)
		require.NoError(t, repos.LedgerRepo().Append(ctx, entry))

		// uncommitted writes are visible inside the unit of work only
		inTx, err := repos.BatchRepo().FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(6), inTx.Quantity)

		outside, err := s.Batches().FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), outside.Quantity)
		return nil
	})
	require.NoError(t, err)

	stored, err := s.Batches().FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), stored.Quantity)

	entries, err := s.Ledger().ListByReference(ctx, "ref-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].QuantityBefore)
	assert.Equal(t, int64(6), entries[0].QuantityAfter)
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := newBatch(t, uuid.New(), uuid.New(), 10)
	require.NoError(t, s.Batches().Create(ctx, b))

	boom := errors.New("boom")
	err := s.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		locked, err := repos.BatchRepo().LockForUpdate(ctx, []uuid.UUID{b.ID}, time.Second)
		require.NoError(t, err)
		_, _, err = locked[0].Deplete(10)
		require.NoError(t, err)
		require.NoError(t, repos.BatchRepo().Save(ctx, &locked[0]))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := s.Batches().FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.Quantity)
	assert.Equal(t, inventory.BatchStatusActive, stored.Status)

	// lock was released
	err = s.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		_, err := repos.BatchRepo().LockForUpdate(ctx, []uuid.UUID{b.ID}, 10*time.Millisecond)
		return err
	})
	assert.NoError(t, err)
}

func TestStore_LockTimeout(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := newBatch(t, uuid.New(), uuid.New(), 10)
	require.NoError(t, s.Batches().Create(ctx, b))

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
			_, err := repos.BatchRepo().LockForUpdate(ctx, []uuid.UUID{b.ID}, time.Second)
			close(held)
			<-done
			return err
		})
	}()
	<-held

	err := s.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		_, err := repos.BatchRepo().LockForUpdate(ctx, []uuid.UUID{b.ID}, 20*time.Millisecond)
		return err
	})
	close(done)
	assert.ErrorIs(t, err, shared.ErrLockTimeout)
}

func TestStore_LockTimeoutBoundsWholeSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	sorted := inventory.SortIDs([]uuid.UUID{uuid.New(), uuid.New()})

	// each lock frees up within the timeout, but not both together
	var holders sync.WaitGroup
	for i, id := range sorted {
		held := make(chan struct{})
		holders.Add(1)
		go func() {
			defer holders.Done()
			_ = s.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
				_, err := repos.BatchRepo().LockForUpdate(ctx, []uuid.UUID{id}, time.Second)
				close(held)
				time.Sleep(time.Duration(i+1) * 40 * time.Millisecond)
				return err
			})
		}()
		<-held
	}
	defer holders.Wait()

	err := s.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		_, err := repos.BatchRepo().LockForUpdate(ctx, sorted, 60*time.Millisecond)
		return err
	})
	assert.ErrorIs(t, err, shared.ErrLockTimeout)
}

func TestBatchRepository_LockOutsideUnitOfWork(t *testing.T) {
	_, err := New().Batches().LockForUpdate(context.Background(), []uuid.UUID{uuid.New()}, time.Second)
	assert.Error(t, err)
}

func TestBatchRepository_FindEligible(t *testing.T) {
	ctx := context.Background()
	s := New()
	med, fac := uuid.New(), uuid.New()

	older := newBatch(t, med, fac, 5)
	older.ReceivedAt = time.Now().Add(-48 * time.Hour)
	newer := newBatch(t, med, fac, 7)
	empty := newBatch(t, med, fac, 1)
	_, err := empty.ZeroOut()
	require.NoError(t, err)
	otherFacility := newBatch(t, med, uuid.New(), 9)

	for _, b := range []*inventory.InventoryBatch{newer, older, empty, otherFacility} {
		require.NoError(t, s.Batches().Create(ctx, b))
	}

	eligible, err := s.Batches().FindEligible(ctx, med, fac)
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	assert.Equal(t, older.ID, eligible[0].ID)
	assert.Equal(t, newer.ID, eligible[1].ID)
}

func TestBatchRepository_List(t *testing.T) {
	ctx := context.Background()
	s := New()
	med, fac := uuid.New(), uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Batches().Create(ctx, newBatch(t, med, fac, int64(10+i))))
	}
	require.NoError(t, s.Batches().Create(ctx, newBatch(t, uuid.New(), fac, 4)))

	filter := shared.DefaultFilter()
	filter.PageSize = 2
	filter.Filters["medication_id"] = med.String()

	items, total, err := s.Batches().List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, items, 2)
}

func TestRequestRepository_CreateAndLock(t *testing.T) {
	ctx := context.Background()
	s := New()
	req, err := fulfillment.NewRequest(uuid.Nil, uuid.New(), uuid.New(), []fulfillment.LineItem{
		{MedicationID: uuid.New(), Quantity: 2},
	})
	require.NoError(t, err)

	require.NoError(t, s.Requests().Create(ctx, req))
	assert.ErrorIs(t, s.Requests().Create(ctx, req), shared.ErrAlreadyExists)

	err = s.Execute(ctx, func(repos unitofwork.TransactionalRepositories) error {
		locked, err := repos.RequestRepo().LockForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := locked.MarkRejected(uuid.New(), "insufficient stock", nil, false); err != nil {
			return err
		}
		return repos.RequestRepo().Save(ctx, locked)
	})
	require.NoError(t, err)

	stored, err := s.Requests().FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.RequestStatusRejected, stored.Status)
	assert.Empty(t, stored.GetDomainEvents())

	_, err = s.Requests().FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAlertRepository_UniqueAndWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr := alert.Trigger{BatchID: uuid.New(), FacilityID: uuid.New(), MedicationID: uuid.New(), MedicationName: "Insulin", Quantity: 3, ReorderThreshold: 5}

	admin, err := alert.NewLowStockAlert(tr, alert.AudienceAdmin, now, 24*time.Hour)
	require.NoError(t, err)
	staff, err := alert.NewLowStockAlert(tr, alert.AudienceInventoryStaff, now, 24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Alerts().Create(ctx, admin, staff))

	again, err := alert.NewLowStockAlert(tr, alert.AudienceAdmin, now.Add(time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Alerts().Create(ctx, again), shared.ErrDuplicateAlert)

	exists, err := s.Alerts().ExistsSince(ctx, admin.DedupKey, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.Alerts().ExistsSince(ctx, admin.DedupKey, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, exists)

	items, total, err := s.Alerts().ListSince(ctx, now.Add(-time.Hour), shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)
}
