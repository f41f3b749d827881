package keysync

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

// AutoUploader uploads a fixed set of keys on a cron schedule. Upload
// errors are logged and the next tick tries again.
type AutoUploader struct {
	uploader *Uploader
	keys     []string
	opts     UploadOptions
	schedule string
	logger   core.Logger
	sched    *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	onTick  func([]UploadResult, error)
}

// NewAutoUploader validates schedule and creates a stopped uploader.
func NewAutoUploader(u *Uploader, keys []string, schedule string, opts UploadOptions) (*AutoUploader, error) {
	if u == nil {
		return nil, fmt.Errorf("keysync: uploader: %w", core.ErrMissingConfiguration)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keysync: no keys to upload: %w", core.ErrMissingConfiguration)
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("keysync: schedule %q: %v: %w", schedule, err, core.ErrInvalidConfiguration)
	}
	return &AutoUploader{
		uploader: u,
		keys:     append([]string(nil), keys...),
		opts:     opts,
		schedule: schedule,
		logger:   u.logger,
	}, nil
}

// FromConfig builds an auto uploader from the keysync section.
func FromConfig(u *Uploader, cfg core.KeySyncConfig) (*AutoUploader, error) {
	return NewAutoUploader(u, cfg.Keys, cfg.Schedule, UploadOptions{})
}

// OnTick registers a hook called after every scheduled run.
func (a *AutoUploader) OnTick(fn func([]UploadResult, error)) {
	a.mu.Lock()
	a.onTick = fn
	a.mu.Unlock()
}

// Start schedules the uploads. The first run happens one period after
// Start, never immediately.
func (a *AutoUploader) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.sched = cron.New(cron.WithParser(cronParser))
	if _, err := a.sched.AddFunc(a.schedule, a.tick); err != nil {
		a.cancel()
		return fmt.Errorf("keysync: schedule: %w", err)
	}
	a.sched.Start()
	a.running = true
	a.logger.Info("Key auto uploader started", map[string]interface{}{
		"schedule": a.schedule,
		"keys":     a.keys,
	})
	return nil
}

// Stop halts the schedule and waits for a running upload to return.
func (a *AutoUploader) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.cancel()
	sched := a.sched
	a.mu.Unlock()
	<-sched.Stop().Done()
}

func (a *AutoUploader) tick() {
	a.mu.Lock()
	ctx, hook := a.ctx, a.onTick
	a.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Key auto upload panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
		}
	}()

	results, err := a.uploader.UploadMany(ctx, a.keys, a.opts)
	if err != nil {
		a.logger.Error("Key auto upload failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if hook != nil {
		hook(results, err)
	}
}
