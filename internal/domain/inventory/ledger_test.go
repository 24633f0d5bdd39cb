package inventory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboundEntry(t *testing.T) {
	b := newTestBatch(t, uuid.New(), 10, day1, nil)
	actor := uuid.New()

	before, after, err := b.Deplete(4)
	require.NoError(t, err)

	entry, err := NewOutboundEntry(&b, ReasonFulfillment, 4, before, after, "REQ-1", actor)
	require.NoError(t, err)
	assert.Equal(t, DirectionOutbound, entry.Direction)
	assert.Equal(t, b.ID, entry.BatchID)
	assert.Equal(t, b.MedicationID, entry.MedicationID)
	assert.Equal(t, b.FacilityID, entry.FacilityID)
	assert.Equal(t, actor, entry.ActorID)
	assert.Equal(t, entry.QuantityBefore-entry.QuantityMoved, entry.QuantityAfter)
	assert.NoError(t, entry.VerifyAgainst(b.Quantity))
}

func TestLedgerEntry_Verify(t *testing.T) {
	b := newTestBatch(t, uuid.New(), 10, day1, nil)

	t.Run("arithmetic mismatch is rejected", func(t *testing.T) {
		_, err := NewOutboundEntry(&b, ReasonFulfillment, 4, 10, 7, "REQ-1", uuid.New())
		assert.ErrorIs(t, err, shared.ErrLedgerMismatch)
	})

	t.Run("stored quantity mismatch is rejected", func(t *testing.T) {
		entry, err := NewOutboundEntry(&b, ReasonFulfillment, 4, 10, 6, "REQ-1", uuid.New())
		require.NoError(t, err)
		assert.ErrorIs(t, entry.VerifyAgainst(5), shared.ErrLedgerMismatch)
	})

	t.Run("inbound adds", func(t *testing.T) {
		entry, err := NewInboundEntry(&b, ReasonRestock, 5, 10, 15, "PO-9", uuid.New())
		require.NoError(t, err)
		assert.NoError(t, entry.VerifyAgainst(15))
	})

	t.Run("unknown reason is rejected", func(t *testing.T) {
		_, err := NewInboundEntry(&b, LedgerReason("GIFT"), 5, 10, 15, "", uuid.New())
		assert.Error(t, err)
	})
}
