package pushbus

import (
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 30 * time.Second
	maxMissedPongs    = 2
)

// runHeartbeat sends a WebSocket ping frame every heartbeatInterval and
// closes conn once maxMissedPongs consecutive pings have gone unanswered
// (spec.md §4.8), mirroring the ticker+select shape of
// ChromePool.StartPeriodicHeartbeat.
func runHeartbeat(conn net.Conn, sub *subscriber, logger *zap.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if missed := sub.bumpMissed(); missed > maxMissedPongs {
				logger.Info("subscriber missed heartbeats, disconnecting",
					zap.String("subscriberId", sub.id), zap.Int("missed", missed))
				conn.Close()
				return
			}
			if err := wsutil.WriteServerMessage(conn, ws.OpPing, nil); err != nil {
				logger.Debug("heartbeat ping failed", zap.Error(err), zap.String("subscriberId", sub.id))
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
