package event

import (
	"testing"

	"github.com/medrx/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	audit := newTestHandler("audit")
	alerts := newTestHandler("alerts")
	approvals := newTestHandler("approvals")

	r.Register(audit)
	r.Register(alerts, "inventory.low_stock", "inventory.shortage")
	r.Register(approvals, "fulfillment.request_approved")
	r.Register(alerts, "inventory.low_stock")

	assert.Equal(t, []shared.EventHandler{alerts, audit}, r.GetHandlers("inventory.low_stock"))
	assert.Equal(t, []shared.EventHandler{audit}, r.GetHandlers("batch.received"))
	assert.Equal(t, []shared.EventHandler{audit}, r.GetHandlers(AnyEvent))
	assert.Equal(t, []string{"fulfillment.request_approved", "inventory.low_stock", "inventory.shortage"}, r.EventTypes())

	r.Unregister(alerts)
	assert.Equal(t, []string{"fulfillment.request_approved"}, r.EventTypes())
	assert.Equal(t, []shared.EventHandler{audit}, r.GetHandlers("inventory.low_stock"))

	r.Unregister(audit)
	assert.Empty(t, r.GetHandlers("inventory.low_stock"))
}

func TestHandlerRegistry_SnapshotIsIndependent(t *testing.T) {
	r := NewHandlerRegistry()
	first := newTestHandler()
	r.Register(first, "inventory.low_stock")

	got := r.GetHandlers("inventory.low_stock")
	r.Register(newTestHandler(), "inventory.low_stock")

	assert.Len(t, got, 1)
	assert.Len(t, r.GetHandlers("inventory.low_stock"), 2)
}
