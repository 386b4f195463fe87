package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// DefaultUpdateTimeout bounds one fire-and-forget ledger update.
const DefaultUpdateTimeout = 5 * time.Second

// DirectRecorder applies events to the ledger in a background goroutine.
type DirectRecorder struct {
	ledger  Ledger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDirectRecorder creates a recorder writing straight to ledger.
func NewDirectRecorder(ledger Ledger, timeout time.Duration) *DirectRecorder {
	if timeout <= 0 {
		timeout = DefaultUpdateTimeout
	}
	return &DirectRecorder{ledger: ledger, timeout: timeout}
}

// Record schedules evt and returns immediately.
func (d *DirectRecorder) Record(evt Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := Apply(ctx, d.ledger, evt); err != nil {
			logApplyError(evt, err)
		}
	}()
}

// Wait blocks until every scheduled update has finished.
func (d *DirectRecorder) Wait() {
	d.wg.Wait()
}

func logApplyError(evt Event, err error) {
	if permanent(err) {
		logger.Debug("tracking event dropped",
			"event", string(evt.Type), "token", evt.Token, "recipient_id", evt.RecipientID, "error", err.Error())
		return
	}
	logger.Warn("tracking event update failed",
		"event", string(evt.Type), "token", evt.Token, "recipient_id", evt.RecipientID, "error", err.Error())
}
