package daemon

import (
	"context"
	"path/filepath"
	"time"

	"tally/internal/engine"
	"tally/internal/logging"
	"tally/internal/notifications"
)

const notifyTimeout = 15 * time.Second

// announce publishes the outcome of a finished run without holding up the
// run goroutine.
func (d *Daemon) announce(st engine.Status) {
	event := notifications.EventRunFailed
	if st.State == engine.StateCompleted {
		event = notifications.EventRunCompleted
	}
	file := st.Identity.Name
	if file == "" {
		file = filepath.Base(st.Path)
	}
	payload := notifications.Payload{
		File:     file,
		Records:  st.Records,
		Balances: st.Balances,
		Err:      st.LastError,
	}
	if !st.StartedAt.IsZero() {
		payload.Elapsed = time.Since(st.StartedAt)
	}

	d.notifyWG.Add(1)
	go func() {
		defer d.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := d.notifier.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(d.logger, "notification failed", "notification_failed",
				logging.Error(err),
				logging.String("event", string(event)),
				logging.String(logging.FieldImpact, "run outcome was not announced"),
			)
		}
	}()
}
