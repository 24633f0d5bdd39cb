package fulfillment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(t *testing.T) *Request {
	t.Helper()
	r, err := NewRequest(uuid.Nil, uuid.New(), uuid.New(), []LineItem{
		{MedicationID: uuid.New(), Quantity: 12},
		{MedicationID: uuid.New(), Quantity: 3},
	})
	require.NoError(t, err)
	return r
}

func TestNewRequest(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := newTestRequest(t)
		assert.Equal(t, RequestStatusPending, r.Status)
		assert.Equal(t, int64(15), r.TotalQuantity())
	})

	t.Run("keeps caller id", func(t *testing.T) {
		id := uuid.New()
		r, err := NewRequest(id, uuid.New(), uuid.Nil, []LineItem{{MedicationID: uuid.New(), Quantity: 1}})
		require.NoError(t, err)
		assert.Equal(t, id, r.ID)
	})

	t.Run("rejects empty and non-positive items", func(t *testing.T) {
		_, err := NewRequest(uuid.Nil, uuid.New(), uuid.Nil, nil)
		assert.Error(t, err)
		_, err = NewRequest(uuid.Nil, uuid.New(), uuid.Nil, []LineItem{{MedicationID: uuid.New(), Quantity: 0}})
		assert.Error(t, err)
	})
}

func TestRequest_TerminalTransitions(t *testing.T) {
	approver := uuid.New()

	t.Run("fulfilled is terminal", func(t *testing.T) {
		r := newTestRequest(t)
		require.NoError(t, r.MarkFulfilled(approver, nil))
		assert.Equal(t, RequestStatusFulfilled, r.Status)
		assert.NotNil(t, r.ProcessedAt)
		require.Len(t, r.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeRequestFulfilled, r.GetDomainEvents()[0].EventType())

		assert.ErrorIs(t, r.MarkFulfilled(approver, nil), shared.ErrRequestAlreadyProcessed)
		assert.ErrorIs(t, r.MarkRejected(approver, "x", nil, false), shared.ErrRequestAlreadyProcessed)
	})

	t.Run("rejected is terminal and keeps reason", func(t *testing.T) {
		r := newTestRequest(t)
		require.NoError(t, r.MarkRejected(approver, "insufficient stock: A required=10 available=3", nil, false))
		assert.Equal(t, RequestStatusRejected, r.Status)
		assert.Contains(t, r.RejectionReason, "required=10")
		assert.ErrorIs(t, r.MarkFulfilled(approver, nil), shared.ErrRequestAlreadyProcessed)
	})

	t.Run("reason is required", func(t *testing.T) {
		r := newTestRequest(t)
		assert.Error(t, r.MarkRejected(approver, "  ", nil, false))
		assert.Equal(t, RequestStatusPending, r.Status)
	})
}

func TestRequest_Reopen(t *testing.T) {
	approver := uuid.New()

	t.Run("transient rejection reopens within budget", func(t *testing.T) {
		r := newTestRequest(t)
		require.NoError(t, r.MarkRejected(approver, "transient: lock timeout", nil, true))
		assert.True(t, r.Transient)
		assert.Equal(t, 1, r.TransientRejections)
		assert.True(t, r.CanReopen(1))

		require.NoError(t, r.Reopen(1))
		assert.Equal(t, RequestStatusPending, r.Status)
		assert.Empty(t, r.RejectionReason)
		assert.Nil(t, r.ProcessedAt)
		assert.False(t, r.Transient)
		assert.Equal(t, 1, r.TransientRejections)

		require.NoError(t, r.MarkRejected(approver, "transient: lock timeout", nil, true))
		assert.Equal(t, 2, r.TransientRejections)
		assert.False(t, r.CanReopen(1))
		assert.ErrorIs(t, r.Reopen(1), shared.ErrRequestAlreadyProcessed)
		assert.Equal(t, RequestStatusRejected, r.Status)
	})

	t.Run("shortage rejection stays terminal", func(t *testing.T) {
		r := newTestRequest(t)
		require.NoError(t, r.MarkRejected(approver, "insufficient stock", nil, false))
		assert.False(t, r.CanReopen(5))
		assert.ErrorIs(t, r.Reopen(5), shared.ErrRequestAlreadyProcessed)
	})

	t.Run("fulfilled and pending cannot reopen", func(t *testing.T) {
		r := newTestRequest(t)
		assert.ErrorIs(t, r.Reopen(5), shared.ErrRequestAlreadyProcessed)
		require.NoError(t, r.MarkFulfilled(approver, nil))
		assert.False(t, r.CanReopen(5))
	})
}

func TestShortageReason(t *testing.T) {
	med := uuid.New()
	reason := ShortageReason([]Shortage{
		{MedicationID: uuid.New(), MedicationName: "Amoxicillin", Required: 10, Available: 3},
		{MedicationID: med, Required: 4, Available: 0},
	})
	assert.Equal(t, "insufficient stock: Amoxicillin required=10 available=3; "+med.String()+" required=4 available=0", reason)
}
