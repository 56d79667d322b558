package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicator_Window(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	d := NewDeduplicator(time.Second)
	d.now = func() time.Time { return now }

	ev := RouteEvent{Kind: KindRouteState, Handle: "a", State: "active"}
	assert.True(t, d.ShouldProcess(ev))
	assert.False(t, d.ShouldProcess(ev))

	other := ev
	other.State = "stopped"
	assert.True(t, d.ShouldProcess(other), "different state is a different event")

	now = now.Add(2 * time.Second)
	assert.True(t, d.ShouldProcess(ev), "window elapsed")
}

func TestDeduplicator_Nil(t *testing.T) {
	t.Parallel()
	var d *Deduplicator
	assert.True(t, d.ShouldProcess(RouteEvent{}))
}
