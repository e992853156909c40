// Package pushbus implements the Push Bus (spec.md §4.8): a hub of live
// subscribers fed ProbeResult emissions and registry events, broadcast over
// upgraded WebSocket connections with per-subscriber backpressure and
// liveness tracking.
package pushbus

import "github.com/watchvane/sentinel/pkg/types"

// EnvelopeType enumerates the server->client and client->server message
// kinds of spec.md §4.8/§6.2.
type EnvelopeType string

const (
	EnvConnected         EnvelopeType = "connected"
	EnvPong              EnvelopeType = "pong"
	EnvSubscribed        EnvelopeType = "subscribed"
	EnvMonitoringUpdate  EnvelopeType = "monitoring_update"
	EnvStatusChange      EnvelopeType = "status_change"
	EnvSyncComplete      EnvelopeType = "sync_complete"
)

// clientMessage is the shape of inbound {"type": "ping"} and
// {"type": "subscribe", "urlIds": [...]} messages.
type clientMessage struct {
	Type   string   `json:"type"`
	URLIDs []string `json:"urlIds"`
}

// envelope is the server->client wire shape. Data is one of
// connectedPayload, subscribedPayload, monitoringUpdatePayload,
// statusChangePayload, or syncCompletePayload, set per Type; omitted
// fields marshal as absent.
type envelope struct {
	Type EnvelopeType `json:"type"`
	Data interface{}  `json:"data,omitempty"`
}

type connectedPayload struct {
	SubscriberID string `json:"subscriberId"`
}

type subscribedPayload struct {
	URLIDs []string `json:"urlIds"`
}

type monitoringUpdatePayload struct {
	*types.ProbeResult
}

type statusChangePayload struct {
	URLID string      `json:"urlId"`
	Old   types.Status `json:"oldStatus"`
	New   types.Status `json:"newStatus"`
}

type syncCompletePayload struct {
	Reason string `json:"reason,omitempty"`
}
