package pushbus

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/pkg/types"
)

// outboxSize bounds each subscriber's buffered send channel; a subscriber
// slower than this is dropped rather than allowed to block broadcast,
// mirroring ChromePool.ReleaseChrome's select-default backpressure.
const outboxSize = 64

type subscriber struct {
	id   string
	out  chan envelope
	mu   sync.Mutex
	filter map[string]bool // nil means unfiltered

	missedPongs int
}

func newSubscriber(id string) *subscriber {
	return &subscriber{id: id, out: make(chan envelope, outboxSize)}
}

func (s *subscriber) setFilter(urlIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(urlIDs) == 0 {
		s.filter = nil
		return
	}
	f := make(map[string]bool, len(urlIDs))
	for _, id := range urlIDs {
		f[id] = true
	}
	s.filter = f
}

func (s *subscriber) accepts(urlID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter == nil {
		return true
	}
	return urlID == "" || s.filter[urlID]
}

// bumpMissed records that a heartbeat tick elapsed without an intervening
// pong and returns the new consecutive-miss count.
func (s *subscriber) bumpMissed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missedPongs++
	return s.missedPongs
}

// notePong resets the consecutive-miss count on any pong frame.
func (s *subscriber) notePong() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missedPongs = 0
}

// Hub is the Push Bus (C8): the live subscriber set, broadcast dispatch,
// and the seam that satisfies dispatch.Emitter and registry.SyncNotifier
// without either package importing this one.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{subs: make(map[string]*subscriber), logger: logger}
}

// register creates and tracks a new subscriber, sending the initial
// connected envelope (spec.md §4.8).
func (h *Hub) register() *subscriber {
	sub := newSubscriber(uuid.NewString())
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	h.send(sub, envelope{Type: EnvConnected, Data: connectedPayload{SubscriberID: sub.id}})
	return sub
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		close(sub.out)
	}
}

// SubscriberCount reports the live subscriber set size, for metrics.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// send is non-blocking: a full outbox disconnects the subscriber instead of
// blocking the broadcaster (spec.md §4.8 "backpressure via disconnect, not
// blocking").
func (h *Hub) send(sub *subscriber, env envelope) {
	select {
	case sub.out <- env:
	default:
		h.logger.Warn("subscriber saturated, disconnecting", zap.String("subscriberId", sub.id))
		go h.unregister(sub.id)
	}
}

func (h *Hub) broadcast(env envelope, urlID string) {
	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.accepts(urlID) {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range targets {
		h.send(sub, env)
	}
}

// EmitProbeResult implements dispatch.Emitter: broadcasts monitoring_update
// to every subscriber whose filter admits result.URLID.
func (h *Hub) EmitProbeResult(r *types.ProbeResult) {
	h.broadcast(envelope{Type: EnvMonitoringUpdate, Data: monitoringUpdatePayload{r}}, r.URLID)
}

// EmitStatusChange implements dispatch.Emitter: broadcasts status_change
// when a probe's classified status differs from the entry's prior status.
func (h *Hub) EmitStatusChange(urlID string, old, newStatus types.Status) {
	h.broadcast(envelope{Type: EnvStatusChange, Data: statusChangePayload{URLID: urlID, Old: old, New: newStatus}}, urlID)
}

// EmitSyncComplete implements registry.SyncNotifier's func() signature as a
// method value (bus.EmitSyncComplete), broadcast unfiltered on any registry
// mutation.
func (h *Hub) EmitSyncComplete() {
	h.broadcast(envelope{Type: EnvSyncComplete, Data: syncCompletePayload{}}, "")
}
