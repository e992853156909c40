package pushbus

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// websocketGUID is the RFC 6455 handshake magic string.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handler returns the fasthttp GET /ws upgrade endpoint. The handshake is
// completed by hand: fasthttp has already consumed the request line and
// headers off the wire by the time a RequestHandler runs, which is
// incompatible with ws.Upgrade's own from-scratch HTTP parsing, so the
// 101 response is written via ctx.Response (fasthttp flushes it before
// invoking the hijack callback) and gobwas/ws is used purely for
// frame-level read/write on the handed-off connection.
func (h *Hub) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !strings.EqualFold(string(ctx.Request.Header.Peek("Upgrade")), "websocket") {
			ctx.Error("expected websocket upgrade", fasthttp.StatusUpgradeRequired)
			return
		}
		key := ctx.Request.Header.Peek("Sec-WebSocket-Key")
		if len(key) == 0 {
			ctx.Error("missing Sec-WebSocket-Key", fasthttp.StatusBadRequest)
			return
		}
		accept := acceptKey(key)

		ctx.Response.SetStatusCode(fasthttp.StatusSwitchingProtocols)
		ctx.Response.Header.Set("Upgrade", "websocket")
		ctx.Response.Header.Set("Connection", "Upgrade")
		ctx.Response.Header.Set("Sec-WebSocket-Accept", accept)

		ctx.Hijack(func(conn net.Conn) {
			h.serveConn(conn)
		})
	}
}

func acceptKey(key []byte) string {
	sum := sha1.Sum(append(append([]byte{}, key...), websocketGUID...))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// serveConn owns conn for its lifetime: a subscriber registration, a
// heartbeat goroutine, a writer goroutine draining the subscriber's
// outbox, and the blocking read loop that ends the connection.
func (h *Hub) serveConn(conn net.Conn) {
	defer conn.Close()

	sub := h.register()
	defer h.unregister(sub.id)

	done := make(chan struct{})
	defer close(done)
	go h.writeLoop(conn, sub)
	go runHeartbeat(conn, sub, h.logger, done)

	h.readLoop(conn, sub)
}

func (h *Hub) writeLoop(conn net.Conn, sub *subscriber) {
	for env := range sub.out {
		b, err := json.Marshal(env)
		if err != nil {
			h.logger.Error("envelope marshal failed", zap.Error(err))
			continue
		}
		if err := wsutil.WriteServerMessage(conn, ws.OpText, b); err != nil {
			conn.Close()
			return
		}
	}
}

func (h *Hub) readLoop(conn net.Conn, sub *subscriber) {
	for {
		msgs, err := wsutil.ReadClientMessage(conn, nil)
		if err != nil {
			return
		}
		for _, m := range msgs {
			switch m.OpCode {
			case ws.OpClose:
				return
			case ws.OpPong:
				sub.notePong()
			case ws.OpPing:
				_ = wsutil.WriteServerMessage(conn, ws.OpPong, m.Payload)
			case ws.OpText:
				h.handleClientMessage(sub, m.Payload)
			}
		}
	}
}

func (h *Hub) handleClientMessage(sub *subscriber, payload []byte) {
	var msg clientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.logger.Debug("malformed client message", zap.Error(err))
		return
	}
	switch msg.Type {
	case "ping":
		h.send(sub, envelope{Type: EnvPong})
	case "subscribe":
		sub.setFilter(msg.URLIDs)
		h.send(sub, envelope{Type: EnvSubscribed, Data: subscribedPayload{URLIDs: msg.URLIDs}})
	default:
		h.logger.Debug("unknown client message type", zap.String("type", msg.Type))
	}
}
