package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soulxhy/tubewatch/internal/config"
	"github.com/soulxhy/tubewatch/internal/downloader"
	"github.com/soulxhy/tubewatch/internal/forwarder"
	"github.com/soulxhy/tubewatch/internal/log"
	"github.com/soulxhy/tubewatch/internal/mailer"
	"github.com/soulxhy/tubewatch/internal/metrics"
	"github.com/soulxhy/tubewatch/internal/queue"
)

// Dispatcher drains the delivery queue and runs the download-then-notify
// pipeline for each accepted notification.
type Dispatcher struct {
	queue     *queue.Queue
	downloads downloader.Service
	notifier  mailer.Notifier
	forward   forwarder.Forwarder // nil when forwarding is not configured
	cfg       *config.Config
	logger    *slog.Logger
}

// New creates a Dispatcher. forward may be nil.
func New(q *queue.Queue, dl downloader.Service, n mailer.Notifier, fw forwarder.Forwarder, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		downloads: dl,
		notifier:  n,
		forward:   fw,
		cfg:       cfg,
		logger:    log.WithComponent("dispatch"),
	}
}

// Start runs the main dispatch loop. Deliveries are dequeued serially and
// processed one at a time. This is a blocking call that runs until ctx is
// cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("dispatch loop started")
	defer d.logger.Info("dispatch loop stopped")

	ticker := time.NewTicker(d.cfg.Service.DispatchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.processNext(ctx); err != nil {
				d.logger.Error("failed to process delivery", "error", err)
				// Continue draining - individual failures don't stop the loop.
			}
		}
	}
}

// processNext dequeues the next delivery and dispatches it.
func (d *Dispatcher) processNext(ctx context.Context) error {
	dlv, err := d.queue.Dequeue(ctx)
	if err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}
	if dlv == nil {
		return nil
	}
	d.dispatch(ctx, dlv)
	return nil
}

// dispatch runs the pipeline for one delivery: forward metadata
// (best-effort), request the download, then send the notification email.
//
// The stages after forwarding are strictly sequential with no compensation:
// a download failure skips the email and fails the delivery, while an email
// failure after a successful download does not roll the download back.
func (d *Dispatcher) dispatch(ctx context.Context, dlv *queue.Delivery) {
	ev := dlv.Event
	dlogger := log.WithDelivery(dlv.ID).With("video_id", ev.VideoID)
	dlogger.Info("dispatching delivery", "title", ev.Title)
	start := time.Now()

	if d.forward != nil {
		if err := d.forward.Forward(ctx, ev); err != nil {
			dlogger.Warn("metadata forwarding failed", "error", err)
		}
	}

	task, err := d.downloads.Download(ctx, downloader.Request{
		URL:        ev.VideoURL,
		Resolution: d.cfg.Download.Resolution,
		Format:     d.cfg.Download.Format,
	})
	if err != nil {
		errMsg := fmt.Sprintf("download failed: %v", err)
		dlogger.Error(errMsg)
		d.complete(ctx, dlv.ID, queue.StatusFailed, &errMsg, "", start)
		return
	}
	dlogger.Info("download accepted", "task_id", task.TaskID, "output_path", task.OutputPath)

	subject, body, err := ComposeEmail(ev, task.OutputPath)
	if err != nil {
		errMsg := fmt.Sprintf("compose email: %v", err)
		dlogger.Error(errMsg)
		d.complete(ctx, dlv.ID, queue.StatusFailed, &errMsg, task.OutputPath, start)
		return
	}

	if err := d.notifier.Send(ctx, subject, body); err != nil {
		// The download side effect stands; only the notification is lost.
		errMsg := fmt.Sprintf("email failed after successful download: %v", err)
		dlogger.Error(errMsg)
		d.complete(ctx, dlv.ID, queue.StatusFailed, &errMsg, task.OutputPath, start)
		return
	}

	dlogger.Info("delivery dispatched", "duration_ms", time.Since(start).Milliseconds())
	d.complete(ctx, dlv.ID, queue.StatusSucceeded, nil, task.OutputPath, start)
}

func (d *Dispatcher) complete(ctx context.Context, id string, status queue.Status, errMsg *string, outputPath string, start time.Time) {
	metrics.DeliveriesCompleted.WithLabelValues(string(status)).Inc()
	metrics.DispatchDuration.WithLabelValues(string(status)).Observe(time.Since(start).Seconds())
	if err := d.queue.Complete(ctx, id, status, errMsg, outputPath); err != nil {
		d.logger.Error("failed to record delivery completion", "delivery_id", id, "error", err)
	}
}
