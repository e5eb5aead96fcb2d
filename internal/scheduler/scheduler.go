package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job types understood by the volumerun process
const (
	JobMeasure  = "predictions.measure"
	JobAccuracy = "predictions.accuracy"
	JobWeekly   = "volume.weekly"
)

// Job represents a scheduled job configuration
type Job struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`     // one of the Job* constants
	Interval    time.Duration `yaml:"interval"` // minimum time between runs
	Description string        `yaml:"description"`
	Enabled     bool          `yaml:"enabled"`
}

// Config holds the job list and the polling cadence
type Config struct {
	Enabled      bool          `yaml:"enabled"`       // run jobs inside the monitor
	TickInterval time.Duration `yaml:"tick_interval"` // Default: 1m
	Jobs         []Job         `yaml:"jobs"`
}

// DefaultConfig measures closed weeks hourly and reports accuracy daily. The
// weekly batch is opt-in because it writes predictions.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Minute,
		Jobs: []Job{
			{Name: "measure", Type: JobMeasure, Interval: time.Hour, Enabled: true,
				Description: "Measure predictions whose week has closed"},
			{Name: "accuracy", Type: JobAccuracy, Interval: 24 * time.Hour, Enabled: true,
				Description: "Log accuracy for every active creator"},
			{Name: "weekly", Type: JobWeekly, Interval: 7 * 24 * time.Hour, Enabled: false,
				Description: "Optimize every active creator and save next week's prediction"},
		},
	}
}

// Runner executes one job type and returns a short summary
type Runner func(ctx context.Context) (string, error)

// Status represents scheduler status
type Status struct {
	Running      bool          `json:"running"`
	EnabledJobs  int           `json:"enabled_jobs"`
	DisabledJobs int           `json:"disabled_jobs"`
	NextRun      time.Time     `json:"next_run"`
	LastRun      time.Time     `json:"last_run"`
	Uptime       time.Duration `json:"uptime"`
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Summary   string        `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Scheduler runs enabled jobs once their interval has elapsed. Jobs run one
// at a time on the Start goroutine.
type Scheduler struct {
	config  Config
	runners map[string]Runner
	now     func() time.Time

	mu        sync.Mutex
	lastRun   map[string]time.Time
	startTime time.Time
	running   bool
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New validates the job list against the registered runners
func New(config Config, runners map[string]Runner, opts ...Option) (*Scheduler, error) {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}

	seen := make(map[string]bool, len(config.Jobs))
	for _, job := range config.Jobs {
		if job.Name == "" {
			return nil, fmt.Errorf("job of type %q has no name", job.Type)
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("duplicate job name: %s", job.Name)
		}
		seen[job.Name] = true

		if !job.Enabled {
			continue
		}
		if _, ok := runners[job.Type]; !ok {
			return nil, fmt.Errorf("job %s: unknown job type: %s", job.Name, job.Type)
		}
		if job.Interval <= 0 {
			return nil, fmt.Errorf("job %s: interval must be positive", job.Name)
		}
	}

	s := &Scheduler{
		config:  config,
		runners: runners,
		now:     time.Now,
		lastRun: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListJobs returns all configured jobs
func (s *Scheduler) ListJobs() []Job {
	return append([]Job(nil), s.config.Jobs...)
}

// GetStatus returns current scheduler status
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Running: s.running}
	if s.running {
		status.Uptime = s.now().Sub(s.startTime)
	}

	for _, job := range s.config.Jobs {
		if !job.Enabled {
			status.DisabledJobs++
			continue
		}
		status.EnabledJobs++

		last := s.lastRun[job.Name]
		if last.After(status.LastRun) {
			status.LastRun = last
		}
		next := s.now()
		if !last.IsZero() {
			next = last.Add(job.Interval)
		}
		if status.NextRun.IsZero() || next.Before(status.NextRun) {
			status.NextRun = next
		}
	}
	return status
}

// Start runs due jobs immediately and then on every tick until ctx is done
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.startTime = s.now()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Info().Int("jobs", len(s.config.Jobs)).Dur("tick", s.config.TickInterval).Msg("Scheduler starting")

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.checkAndRunJobs(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.checkAndRunJobs(ctx)
		}
	}
}

// checkAndRunJobs runs every enabled job whose interval has elapsed
func (s *Scheduler) checkAndRunJobs(ctx context.Context) []JobResult {
	var results []JobResult
	for _, job := range s.dueJobs() {
		if ctx.Err() != nil {
			break
		}
		res, err := s.RunJob(ctx, job.Name)
		if err != nil {
			log.Error().Err(err).Str("job", job.Name).Msg("Scheduled job could not start")
			continue
		}
		results = append(results, *res)
	}
	return results
}

func (s *Scheduler) dueJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []Job
	for _, job := range s.config.Jobs {
		if !job.Enabled {
			continue
		}
		last, ok := s.lastRun[job.Name]
		if !ok || now.Sub(last) >= job.Interval {
			due = append(due, job)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].Name < due[j].Name })
	return due
}

// RunJob executes a specific job immediately. A failing job is reported in
// the result, not as an error.
func (s *Scheduler) RunJob(ctx context.Context, jobName string) (*JobResult, error) {
	var job *Job
	for i, j := range s.config.Jobs {
		if j.Name == jobName {
			job = &s.config.Jobs[i]
			break
		}
	}
	if job == nil {
		return nil, fmt.Errorf("job not found: %s", jobName)
	}

	runner, ok := s.runners[job.Type]
	if !ok {
		return nil, fmt.Errorf("job %s: unknown job type: %s", job.Name, job.Type)
	}

	startTime := s.now()
	result := &JobResult{JobName: jobName, StartTime: startTime, Success: true}

	log.Info().Str("job", jobName).Str("type", job.Type).Msg("Executing job")

	summary, err := runner(ctx)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		log.Error().Err(err).Str("job", jobName).Msg("Job failed")
	} else {
		result.Summary = summary
		log.Info().Str("job", jobName).Str("summary", summary).Msg("Job complete")
	}

	result.EndTime = s.now()
	result.Duration = result.EndTime.Sub(startTime)

	s.mu.Lock()
	s.lastRun[jobName] = startTime
	s.mu.Unlock()

	return result, nil
}
