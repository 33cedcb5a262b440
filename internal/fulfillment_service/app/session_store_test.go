package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

func TestSessionStore_OnePerBuyer(t *testing.T) {
	s := NewSessionStore()
	s.Put(domain.BuyerSession{BuyerID: 2, OrderID: "B"})
	s.Put(domain.BuyerSession{BuyerID: 1, OrderID: "A"})
	s.Put(domain.BuyerSession{BuyerID: 2, OrderID: "C"})

	assert.Equal(t, 2, s.Len())
	snap := s.Snapshot()
	assert.Equal(t, []string{"A", "C"}, []string{snap[0].OrderID, snap[1].OrderID})

	s.Delete(2)
	_, ok := s.Get(2)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCooldown(time.Second)
	c.now = func() time.Time { return now }

	assert.False(t, c.Active(), "no reply yet")
	c.Mark()
	assert.True(t, c.Active())

	now = now.Add(999 * time.Millisecond)
	assert.True(t, c.Active())
	now = now.Add(time.Millisecond)
	assert.False(t, c.Active())

	var disabled *Cooldown
	disabled.Mark()
	assert.False(t, disabled.Active())
}

func TestSessionStore_TerminalPutRemoves(t *testing.T) {
	s := NewSessionStore()
	session := domain.BuyerSession{BuyerID: 3, OrderID: "ORD-3", State: domain.StateAwaitingConfirmation}
	s.Put(session)
	require.Equal(t, 1, s.Len())

	session.State = domain.StateDelivered
	s.Put(session)
	_, ok := s.Get(3)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	session.State = domain.StateFailedHandled
	s.Put(session)
	assert.Equal(t, 0, s.Len())
}
