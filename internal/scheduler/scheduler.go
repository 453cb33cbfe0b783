// Package scheduler runs scans on cron schedules. Jobs hand their scan to a
// Launcher, normally the scanning.Manager, so scheduled scans share the
// manager's concurrency slots with scans started over the API.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/scanning"
	"github.com/anstrom/netrecon/internal/targets"
)

// Launcher starts a scan and returns its ID.
type Launcher interface {
	Start(ctx context.Context, cfg scanning.Config) (string, error)
}

// Job is a snapshot of one scheduled scan.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Cron       string          `json:"cron"`
	Config     scanning.Config `json:"config"`
	Enabled    bool            `json:"enabled"`
	LastRun    time.Time       `json:"last_run,omitempty"`
	LastScanID string          `json:"last_scan_id,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	NextRun    time.Time       `json:"next_run"`
	Runs       int             `json:"runs"`
}

type entry struct {
	job      Job
	cronID   cron.EntryID
	schedule cron.Schedule
}

// Scheduler owns a cron runner and the registered jobs.
type Scheduler struct {
	launcher Launcher
	cron     *cron.Cron
	logger   *logging.Logger

	mu      sync.RWMutex
	jobs    map[uuid.UUID]*entry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a stopped scheduler.
func New(launcher Launcher) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		launcher: launcher,
		cron:     cron.New(),
		logger:   logging.WithComponent("scheduler"),
		jobs:     make(map[uuid.UUID]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins firing jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop halts the cron runner. Scans already launched keep running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.cancel()
	s.logger.Info("Scheduler stopped")
}

// AddJob registers a scan to run on cronExpr, a standard five-field
// expression or a descriptor such as "@hourly". Invalid expressions and
// invalid targets are rejected here rather than at fire time.
func (s *Scheduler) AddJob(name, cronExpr string, cfg scanning.Config) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, errors.ErrConfigInvalid("name", name)
	}
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return uuid.Nil, errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("invalid cron expression: %v", err), "cron", cronExpr)
	}
	if _, err := targets.Parse(cfg.Target); err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.jobs {
		if e.job.Name == name {
			return uuid.Nil, errors.NewConfigFieldError(errors.CodeValidation,
				"a job with this name already exists", "name", name)
		}
	}

	id := uuid.New()
	cronID, err := s.cron.AddFunc(cronExpr, func() { s.execute(id) })
	if err != nil {
		return uuid.Nil, errors.WrapConfigError(errors.CodeValidation, "failed to add cron job", err)
	}
	s.jobs[id] = &entry{
		job: Job{
			ID:      id,
			Name:    name,
			Cron:    cronExpr,
			Config:  cfg,
			Enabled: true,
			NextRun: schedule.Next(time.Now()),
		},
		cronID:   cronID,
		schedule: schedule,
	}

	s.logger.Info("Added scheduled scan", "job", name, "cron", cronExpr, "target", cfg.Target)
	return id, nil
}

// RemoveJob unregisters a job.
func (s *Scheduler) RemoveJob(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return errors.NewScanError(errors.CodeNotFound, "job not found")
	}
	s.cron.Remove(e.cronID)
	delete(s.jobs, id)
	s.logger.Info("Removed scheduled scan", "job", e.job.Name)
	return nil
}

// EnableJob lets a disabled job fire again.
func (s *Scheduler) EnableJob(id uuid.UUID) error { return s.setEnabled(id, true) }

// DisableJob keeps a job registered but skips its firings.
func (s *Scheduler) DisableJob(id uuid.UUID) error { return s.setEnabled(id, false) }

func (s *Scheduler) setEnabled(id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return errors.NewScanError(errors.CodeNotFound, "job not found")
	}
	e.job.Enabled = enabled
	return nil
}

// Jobs returns snapshots of every job ordered by name.
func (s *Scheduler) Jobs() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.job)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Job) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// RunNow fires a job immediately, ignoring its enabled flag.
func (s *Scheduler) RunNow(id uuid.UUID) (string, error) {
	s.mu.RLock()
	_, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return "", errors.NewScanError(errors.CodeNotFound, "job not found")
	}
	return s.launch(id)
}

func (s *Scheduler) execute(id uuid.UUID) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	enabled := ok && e.job.Enabled
	s.mu.RUnlock()
	if !enabled {
		return
	}
	if _, err := s.launch(id); err != nil {
		s.logger.Error("Scheduled scan failed to start", "job_id", id, "error", err)
	}
}

func (s *Scheduler) launch(id uuid.UUID) (string, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.RUnlock()
		return "", errors.NewScanError(errors.CodeNotFound, "job not found")
	}
	cfg, name := e.job.Config, e.job.Name
	s.mu.RUnlock()

	scanID, err := s.launcher.Start(s.ctx, cfg)

	s.mu.Lock()
	if e, ok := s.jobs[id]; ok {
		now := time.Now()
		e.job.LastRun = now
		e.job.NextRun = e.schedule.Next(now)
		e.job.Runs++
		e.job.LastScanID = scanID
		e.job.LastError = ""
		if err != nil {
			e.job.LastError = err.Error()
		}
	}
	s.mu.Unlock()

	if err == nil {
		s.logger.Info("Scheduled scan started", "job", name, "scan_id", scanID)
	}
	return scanID, err
}
