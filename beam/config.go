package beam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/uberbrodt/beamgo/beam/internal/sched"
)

// Config controls the process runtime. The zero value of each field means
// "use the default".
type Config struct {
	// Number of scheduler workers. Defaults to GOMAXPROCS.
	Schedulers int `env:"BEAM_SCHEDULERS"`
	// Reductions a process may spend before it is preempted. Every message
	// received costs one.
	Reductions int `env:"BEAM_REDUCTIONS" envDefault:"2000"`
	// How long a process may hold a scheduler without reaching a scheduling
	// point before the scheduler moves on without it.
	Handoff time.Duration `env:"BEAM_HANDOFF" envDefault:"2ms"`
	// Deep copy message terms on Send.
	CopyMessages bool `env:"BEAM_COPY_MESSAGES" envDefault:"true"`
	Debug        bool `env:"BEAM_DEBUG"`
}

// DefaultConfig is what the runtime uses when the environment says nothing.
func DefaultConfig() Config {
	return Config{
		Reductions:   sched.DefaultBudget,
		Handoff:      sched.DefaultHandoff,
		CopyMessages: true,
	}
}

// ConfigFromEnv reads the BEAM_* environment variables.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return DefaultConfig(), fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

type runtimeState struct {
	mx    sync.RWMutex
	cfg   Config
	sched *sched.Scheduler
}

var rt runtimeState

// Configure replaces the runtime configuration. Processes spawned afterwards
// are scheduled by a new scheduler built from cfg; processes already running
// finish unscheduled.
func Configure(cfg Config) {
	s := sched.New(sched.Config{
		Workers: cfg.Schedulers,
		Budget:  cfg.Reductions,
		Handoff: cfg.Handoff,
	})
	s.Start(context.Background())

	rt.mx.Lock()
	old := rt.sched
	rt.cfg = cfg
	rt.sched = s
	rt.mx.Unlock()

	SetDebugLog(cfg.Debug)

	if old != nil {
		old.Stop()
	}
}

// CurrentConfig returns the active configuration.
func CurrentConfig() Config {
	rt.mx.RLock()
	defer rt.mx.RUnlock()
	return rt.cfg
}

// SchedulerInfo holds the worker count, run queue length and dispatch
// counters of the active scheduler.
type SchedulerInfo = sched.Stats

// SchedulerStats reports counters from the active scheduler.
func SchedulerStats() SchedulerInfo {
	return scheduler().Stats()
}

func scheduler() *sched.Scheduler {
	rt.mx.RLock()
	defer rt.mx.RUnlock()
	return rt.sched
}

func copyMessages() bool {
	rt.mx.RLock()
	defer rt.mx.RUnlock()
	return rt.cfg.CopyMessages
}

func init() {
	cfg, err := ConfigFromEnv()
	if err != nil {
		Logger.Error("invalid runtime configuration, using defaults", "error", err)
	}
	Configure(cfg)
	startRoot()
}
