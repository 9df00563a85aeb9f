package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type pinger interface {
	Ping(data []byte) error
}

// heartbeat sends pings on a fixed interval until stopped or a ping fails.
type heartbeat struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startHeartbeat(p pinger, interval time.Duration, logger *slog.Logger) *heartbeat {
	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel}
	if interval <= 0 {
		return hb
	}

	hb.wg.Add(1)
	go func() {
		defer hb.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			// stop may have raced with the tick.
			if ctx.Err() != nil {
				return
			}
			if err := p.Ping(nil); err != nil {
				logger.Debug("heartbeat stopped", "error", err)
				return
			}
			logger.Debug("heartbeat ping sent")
		}
	}()
	return hb
}

// stop cancels the loop and waits for it, so no ping is sent after it
// returns.
func (hb *heartbeat) stop() {
	hb.cancel()
	hb.wg.Wait()
}
