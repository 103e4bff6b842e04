// Package scheduler provides background sync scheduling for offline operations.
// It drains the offline queue periodically while online, syncs as soon as
// connectivity returns and runs daily database maintenance.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/logging"
	syncpkg "github.com/smarttourjo/core/internal/sync"
)

// syncTimeout bounds one background sync.
const syncTimeout = 5 * time.Minute

// Scheduler manages background sync operations.
type Scheduler struct {
	engine              syncpkg.SyncEngineInterface
	queueInterval       time.Duration
	maintenanceInterval time.Duration
	stopCh              chan struct{}
	wg                  sync.WaitGroup
	mu                  sync.RWMutex
	ctx                 context.Context
	isRunning           bool
	isOnline            bool
	lastSyncTime        time.Time
	syncInProgress      bool
	maintenanceRunning  bool
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	QueueInterval       time.Duration // How often to drain the queue when online (default: 1 minute)
	MaintenanceInterval time.Duration // How often to prune and vacuum (default: 24 hours)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		QueueInterval:       1 * time.Minute,
		MaintenanceInterval: 24 * time.Hour,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(engine syncpkg.SyncEngineInterface, config *SchedulerConfig) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config == nil {
		config = defaults
	}
	if config.QueueInterval <= 0 {
		config.QueueInterval = defaults.QueueInterval
	}
	if config.MaintenanceInterval <= 0 {
		config.MaintenanceInterval = defaults.MaintenanceInterval
	}

	return &Scheduler{
		engine:              engine,
		queueInterval:       config.QueueInterval,
		maintenanceInterval: config.MaintenanceInterval,
		ctx:                 context.Background(),
		isOnline:            true, // Assume online initially
	}
}

// Start starts the background loops. They stop on Stop or when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ctx = ctx
	// A fresh channel per run lets a stopped scheduler start again.
	stop := make(chan struct{})
	s.stopCh = stop
	s.mu.Unlock()

	s.wg.Add(2)
	go s.queueProcessorLoop(ctx, stop)
	go s.maintenanceLoop(ctx, stop)

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"queue_interval":       s.queueInterval.String(),
		"maintenance_interval": s.maintenanceInterval.String(),
	})
}

// Stop stops the scheduler and waits for running work to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stop := s.stopCh
	s.mu.Unlock()

	close(stop)
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

// SetOnlineStatus records connectivity. Coming back online with pending
// actions starts a sync right away.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = isOnline
	ctx := s.ctx
	s.mu.Unlock()

	if wasOnline == isOnline {
		return
	}
	logging.Info("Online status changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  isOnline,
	})

	if isOnline {
		pending, err := s.engine.PendingCount(ctx)
		if err != nil {
			logging.Error("Failed to count pending actions", err)
			return
		}
		if pending > 0 {
			s.TriggerSync(ctx)
		}
	}
}

// queueProcessorLoop drains the queue on every tick while online.
func (s *Scheduler) queueProcessorLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.queueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			s.runSync(ctx)
		}
	}
}

// maintenanceLoop prunes and vacuums the database on every tick.
func (s *Scheduler) maintenanceLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.RunMaintenance(ctx)
		}
	}
}

// RunMaintenance runs database maintenance unless it is already running.
// Failures are logged only.
func (s *Scheduler) RunMaintenance(ctx context.Context) {
	s.mu.Lock()
	if s.maintenanceRunning {
		s.mu.Unlock()
		return
	}
	s.maintenanceRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.maintenanceRunning = false
		s.mu.Unlock()
	}()

	if err := s.engine.PerformMaintenance(ctx); err != nil {
		logging.Warn("Scheduled maintenance failed", map[string]interface{}{"error": err.Error()})
	}
}

// begin marks a sync as started. It returns false when one is running.
func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncInProgress {
		return false
	}
	s.syncInProgress = true
	return true
}

func (s *Scheduler) end(result *syncpkg.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncInProgress = false
	if result != nil && !result.Skipped && result.Attempted > 0 {
		s.lastSyncTime = time.Now()
	}
}

// runSync executes one sync if none is running.
func (s *Scheduler) runSync(ctx context.Context) {
	if !s.begin() {
		logging.Debug("Sync already in progress, skipping", nil)
		return
	}
	s.sync(ctx)
}

// sync runs with syncInProgress already set.
func (s *Scheduler) sync(ctx context.Context) (*syncpkg.SyncResult, error) {
	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	result, err := s.engine.SyncPending(syncCtx)
	s.end(result)

	if err != nil {
		logging.ErrorWithCode("Background sync failed", string(errors.ErrSyncFailed), err,
			map[string]interface{}{"interval_seconds": s.queueInterval.Seconds()})
		return result, err
	}
	if result.Attempted > 0 {
		logging.Info("Background sync completed", map[string]interface{}{
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
		})
	}
	return result, nil
}

// TriggerSync starts a sync in the background.
// Returns true if sync was started, false if sync is already in progress.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	if !s.begin() {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sync(ctx)
	}()
	return true
}

// SyncNow syncs and waits for completion.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.SyncResult, error) {
	if !s.begin() {
		return nil, errors.New(errors.ErrSyncInProgress, "sync already in progress")
	}
	return s.sync(ctx)
}

// SchedulerStatus is a snapshot of the scheduler state.
type SchedulerStatus struct {
	IsRunning             bool       `json:"is_running"`
	IsOnline              bool       `json:"is_online"`
	LastSyncTime          *time.Time `json:"last_sync_time,omitempty"`
	SyncInProgress        bool       `json:"sync_in_progress"`
	MaintenanceInProgress bool       `json:"maintenance_in_progress"`
	PendingItems          int        `json:"pending_items"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus(ctx context.Context) SchedulerStatus {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:             s.isRunning,
		IsOnline:              s.isOnline,
		SyncInProgress:        s.syncInProgress,
		MaintenanceInProgress: s.maintenanceRunning,
	}
	last := s.lastSyncTime
	s.mu.RUnlock()

	if last.IsZero() {
		last, _ = s.engine.LastSync(ctx)
	}
	if !last.IsZero() {
		status.LastSyncTime = &last
	}

	pending, err := s.engine.PendingCount(ctx)
	if err != nil {
		logging.Error("Failed to count pending actions", err)
	}
	status.PendingItems = pending

	return status
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
