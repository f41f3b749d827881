package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/itsneelabh/storefront/core"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Flusher drives Queue.Flush from a cron schedule and from reconnect
// signals. Triggers never overlap: the queue coalesces concurrent flushes.
type Flusher struct {
	queue    *Queue
	schedule string
	logger   core.Logger
	sched    *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewFlusher creates a flusher. An empty schedule disables the periodic
// trigger; reconnects and manual triggers still flush.
func NewFlusher(q *Queue, schedule string, logger core.Logger) (*Flusher, error) {
	if q == nil {
		return nil, fmt.Errorf("flusher: queue: %w", core.ErrMissingConfiguration)
	}
	if schedule != "" {
		if _, err := cronParser.Parse(schedule); err != nil {
			return nil, fmt.Errorf("flusher: schedule %q: %v: %w", schedule, err, core.ErrInvalidConfiguration)
		}
	}
	return &Flusher{
		queue:    q,
		schedule: schedule,
		logger:   core.ComponentLogger(logger, "queue-flusher"),
		sched:    cron.New(cron.WithParser(cronParser)),
	}, nil
}

// Start begins the periodic schedule. ctx bounds every flush started by the
// flusher.
func (f *Flusher) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	f.ctx, f.cancel = context.WithCancel(ctx)
	if f.schedule != "" {
		if _, err := f.sched.AddFunc(f.schedule, func() { f.run("schedule") }); err != nil {
			f.cancel()
			return fmt.Errorf("flusher: %w", err)
		}
	}
	f.sched.Start()
	f.started = true
	return nil
}

// OnOnline is the reconnect hook; it flushes in the background.
func (f *Flusher) OnOnline() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		f.run("reconnect")
	}()
}

// FlushNow flushes synchronously, for manual triggers.
func (f *Flusher) FlushNow(ctx context.Context) (FlushResult, error) {
	return f.queue.Flush(ctx)
}

// Stop halts the schedule and waits for running flushes.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	cancel := f.cancel
	f.mu.Unlock()

	<-f.sched.Stop().Done()
	cancel()
	f.wg.Wait()
}

func (f *Flusher) run(trigger string) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Queue flush panicked", map[string]interface{}{
				"trigger": trigger,
				"panic":   fmt.Sprint(r),
			})
		}
	}()

	f.mu.Lock()
	ctx := f.ctx
	f.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	res, err := f.queue.Flush(ctx)
	switch {
	case err != nil:
		f.logger.Warn("Queue flush attempt failed", map[string]interface{}{
			"trigger": trigger,
			"error":   err.Error(),
		})
	case res.Sent > 0:
		f.logger.Info("Queued orders sent", map[string]interface{}{
			"trigger": trigger,
			"sent":    res.Sent,
		})
	}
}
