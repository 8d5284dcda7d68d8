package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/workflow"
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

type call struct {
	id string
	p  float64
}

type recorder struct {
	calls []call
}

func (r *recorder) fn(id string, p float64) {
	r.calls = append(r.calls, call{id, p})
}

type fakeStore struct {
	updates []call
	accept  bool
	unknown map[string]bool
}

func (s *fakeStore) Has(id string) bool {
	return !s.unknown[id]
}

func (s *fakeStore) UpdateProgress(id string, p float64) bool {
	s.updates = append(s.updates, call{id, p})
	return s.accept
}

func TestNotifyPersistsThenFansOut(t *testing.T) {
	reg := workflow.NewRegistry(logger.NewNop())
	b := NewBroadcaster(reg, logger.NewNop())

	id := reg.Create("job")
	require.True(t, reg.Start(id))

	rec := &recorder{}
	b.Subscribe(func(wid string, p float64) {
		exec, ok := reg.Get(wid)
		require.True(t, ok)
		assert.Equal(t, p, exec.Progress, "registry updated before subscribers run")
		rec.fn(wid, p)
	})

	b.Notify(id, 0.5)

	exec, _ := reg.Get(id)
	assert.Equal(t, 0.5, exec.Progress)
	assert.Equal(t, []call{{id, 0.5}}, rec.calls)
}

func TestNotifyOrder(t *testing.T) {
	store := &fakeStore{accept: true}
	b := NewBroadcaster(store, logger.NewNop())

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe(func(string, float64) { order = append(order, i) })
	}

	b.Notify("w", 0.1)
	b.Notify("w", 0.2)

	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, order)
	assert.Equal(t, []call{{"w", 0.1}, {"w", 0.2}}, store.updates)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	b := NewBroadcaster(&fakeStore{accept: true}, logger.NewNop())

	before, after := &recorder{}, &recorder{}
	b.Subscribe(before.fn)
	b.Subscribe(func(string, float64) { panic("subscriber exploded") })
	b.Subscribe(after.fn)

	assert.NotPanics(t, func() { b.Notify("w", 0.3) })
	assert.Len(t, before.calls, 1)
	assert.Len(t, after.calls, 1)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster(&fakeStore{accept: true}, logger.NewNop())

	kept, removed := &recorder{}, &recorder{}
	b.Subscribe(kept.fn)
	sub := b.Subscribe(removed.fn)

	b.Notify("w", 0.1)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Notify("w", 0.2)

	assert.Len(t, kept.calls, 2)
	assert.Equal(t, []call{{"w", 0.1}}, removed.calls)
	assert.Equal(t, 1, b.Count())
}

func TestSubscribeDuringNotifyWaitsForNextCall(t *testing.T) {
	b := NewBroadcaster(&fakeStore{accept: true}, logger.NewNop())

	late := &recorder{}
	b.Subscribe(func(string, float64) {
		if b.Count() == 1 {
			b.Subscribe(late.fn)
		}
	})

	b.Notify("w", 0.1)
	assert.Empty(t, late.calls)

	b.Notify("w", 0.2)
	assert.Equal(t, []call{{"w", 0.2}}, late.calls)
}

func TestNotifyTerminalWorkflowDoesNotChangeRecord(t *testing.T) {
	reg := workflow.NewRegistry(logger.NewNop())
	b := NewBroadcaster(reg, logger.NewNop())

	id := reg.Create("job")
	reg.Start(id)
	reg.Complete(id, nil)

	rec := &recorder{}
	b.Subscribe(rec.fn)
	b.Notify(id, 0.2)

	exec, _ := reg.Get(id)
	assert.Equal(t, v1.WorkflowStatusCompleted, exec.Status)
	assert.Equal(t, 1.0, exec.Progress)
	assert.Len(t, rec.calls, 1)
}

func TestNotifyUnknownWorkflowIsDropped(t *testing.T) {
	reg := workflow.NewRegistry(logger.NewNop())
	b := NewBroadcaster(reg, logger.NewNop())

	rec := &recorder{}
	b.Subscribe(rec.fn)

	b.Notify("no-such-workflow", 0.4)

	assert.Empty(t, rec.calls)
	assert.Equal(t, 0, reg.Len())
}

func TestNotifyUnknownSkipsStore(t *testing.T) {
	store := &fakeStore{accept: true, unknown: map[string]bool{"gone": true}}
	b := NewBroadcaster(store, logger.NewNop())

	rec := &recorder{}
	b.Subscribe(rec.fn)

	b.Notify("gone", 0.1)
	b.Notify("w", 0.2)

	assert.Equal(t, []call{{"w", 0.2}}, store.updates)
	assert.Equal(t, []call{{"w", 0.2}}, rec.calls)
}
