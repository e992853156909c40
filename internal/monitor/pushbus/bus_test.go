package pushbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/pkg/types"
)

func drain(t *testing.T, sub *subscriber) envelope {
	t.Helper()
	select {
	case env := <-sub.out:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return envelope{}
	}
}

func TestHub_RegisterSendsConnected(t *testing.T) {
	h := NewHub(zap.NewNop())
	sub := h.register()
	env := drain(t, sub)
	assert.Equal(t, EnvConnected, env.Type)
	assert.Equal(t, 1, h.SubscriberCount())
}

func TestHub_BroadcastRespectsFilter(t *testing.T) {
	h := NewHub(zap.NewNop())
	subA := h.register()
	drain(t, subA) // connected
	subA.setFilter([]string{"url-a"})

	h.EmitProbeResult(&types.ProbeResult{URLID: "url-b", Status: types.StatusUp})
	select {
	case env := <-subA.out:
		t.Fatalf("unexpected envelope delivered to filtered subscriber: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}

	h.EmitProbeResult(&types.ProbeResult{URLID: "url-a", Status: types.StatusDown})
	env := drain(t, subA)
	assert.Equal(t, EnvMonitoringUpdate, env.Type)
}

func TestHub_BroadcastUnfilteredDeliversAll(t *testing.T) {
	h := NewHub(zap.NewNop())
	sub := h.register()
	drain(t, sub) // connected

	h.EmitStatusChange("url-x", types.StatusUp, types.StatusDown)
	env := drain(t, sub)
	assert.Equal(t, EnvStatusChange, env.Type)
	payload, ok := env.Data.(statusChangePayload)
	require.True(t, ok)
	assert.Equal(t, "url-x", payload.URLID)
	assert.Equal(t, types.StatusUp, payload.Old)
	assert.Equal(t, types.StatusDown, payload.New)
}

func TestHub_SaturatedSubscriberIsDropped(t *testing.T) {
	h := NewHub(zap.NewNop())
	sub := h.register()
	drain(t, sub) // connected

	for i := 0; i < outboxSize+5; i++ {
		h.EmitStatusChange("url-x", types.StatusUp, types.StatusDown)
	}

	assert.Eventually(t, func() bool { return h.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscriber_HeartbeatMissCounter(t *testing.T) {
	sub := newSubscriber("s1")
	assert.Equal(t, 1, sub.bumpMissed())
	assert.Equal(t, 2, sub.bumpMissed())
	sub.notePong()
	assert.Equal(t, 1, sub.bumpMissed())
}

func TestHub_EmitSyncCompleteUnfiltered(t *testing.T) {
	h := NewHub(zap.NewNop())
	sub := h.register()
	drain(t, sub) // connected
	sub.setFilter([]string{"only-this-one"})

	h.EmitSyncComplete()
	env := drain(t, sub)
	assert.Equal(t, EnvSyncComplete, env.Type)
}
