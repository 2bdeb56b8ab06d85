package fanout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

type countingDrops struct {
	counts map[string]int
}

func (c *countingDrops) EventDropped(subscriberID string) {
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[subscriberID]++
}

func TestPublishDeliversToEligibleSubscriberOnly(t *testing.T) {
	drops := &countingDrops{}
	hub := New(drops)

	eligible := domain.NewSubscriber("alice", nil, []domain.Permission{domain.PermissionViewMonitoring}, []domain.Group{domain.GroupHTTP})
	ineligibleGroup := domain.NewSubscriber("bob", nil, []domain.Permission{domain.PermissionViewMonitoring}, []domain.Group{domain.GroupDatabase})
	noPermission := domain.NewSubscriber("carol", nil, nil, []domain.Group{domain.GroupHTTP})

	subA := hub.Subscribe("a", eligible, 4)
	hub.Subscribe("b", ineligibleGroup, 4)
	hub.Subscribe("c", noPermission, 4)

	result := &domain.Result{TargetName: "api"}
	hub.Publish(domain.TargetKindHTTP, result)

	select {
	case got := <-subA.Events():
		assert.Same(t, result, got)
	default:
		t.Fatal("expected eligible subscriber to receive the event")
	}
}

func TestPublishDropsOnFullBufferWithoutBlocking(t *testing.T) {
	drops := &countingDrops{}
	hub := New(drops)

	sub := domain.NewSubscriber("alice", nil, []domain.Permission{domain.PermissionViewMonitoring}, []domain.Group{domain.GroupGlobal})
	subscription := hub.Subscribe("a", sub, 1)

	for i := 0; i < 5; i++ {
		hub.Publish(domain.TargetKindHTTP, &domain.Result{TargetName: "api"})
	}

	require.Len(t, drops.counts, 1)
	assert.Equal(t, 4, drops.counts["a"])
	assert.Len(t, subscription.events, 1)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := New(nil)
	sub := domain.NewSubscriber("alice", nil, []domain.Permission{domain.PermissionViewMonitoring}, []domain.Group{domain.GroupGlobal})
	subscription := hub.Subscribe("a", sub, 1)

	hub.Unsubscribe("a")
	hub.Unsubscribe("a") // idempotent

	_, ok := <-subscription.Events()
	assert.False(t, ok)
}
