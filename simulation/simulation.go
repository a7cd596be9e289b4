// Package simulation assembles processors, controllers, the bus and the
// timer into a runnable system.
package simulation

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/snoopsim/config"
	"github.com/sarchlab/snoopsim/timing/bus"
	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/coherence"
	"github.com/sarchlab/snoopsim/timing/controller"
	"github.com/sarchlab/snoopsim/timing/core"
	"github.com/sarchlab/snoopsim/timing/latency"
	"github.com/sarchlab/snoopsim/timing/timer"
)

// Option configures a Simulation.
type Option func(*Simulation)

// WithRecorder records every delivered bus transaction.
func WithRecorder(r bus.Recorder) Option {
	return func(s *Simulation) {
		s.recorder = r
	}
}

// WithEngine drives the timer with the given engine instead of a fresh
// serial engine.
func WithEngine(engine sim.Engine) Option {
	return func(s *Simulation) {
		s.engine = engine
	}
}

// Simulation is a complete multi-core system.
type Simulation struct {
	config *config.Config

	engine   sim.Engine
	recorder bus.Recorder

	Timer       *timer.Timer
	Bus         *bus.Bus
	Controllers []*controller.Controller
	Processors  []*core.Processor
}

// Result summarizes a finished run.
type Result struct {
	Protocol string       `yaml:"protocol"`
	Cycles   uint64       `yaml:"cycles"`
	Cores    []core.Stats `yaml:"cores"`
	Bus      bus.Stats    `yaml:"bus"`
}

// Build wires a system running one trace per core.
func Build(cfg *config.Config, traces []core.Trace, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(traces) != cfg.Cores {
		return nil, fmt.Errorf("%d cores configured but %d traces given",
			cfg.Cores, len(traces))
	}

	s := &Simulation{config: cfg.Clone()}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = sim.NewSerialEngine()
	}

	table := latency.NewTableWithConfig(s.config.Timing.Clone(), s.config.Cache.BlockSize)
	protocol, err := coherence.New(s.config.Protocol, table)
	if err != nil {
		return nil, err
	}

	s.Bus = bus.New(protocol, table.CacheHit())
	s.Timer = timer.New(s.engine, 1*sim.GHz, s.Bus)

	for i, trace := range traces {
		c, err := cache.New(s.config.Cache, table.WriteBack())
		if err != nil {
			return nil, err
		}

		ctrl := controller.New(i, c, s.Bus, table.CacheHit(), table.WriteBack())
		proc := core.NewProcessor(i, trace, ctrl)
		ctrl.SetCore(proc)

		s.Bus.Attach(ctrl)
		s.Timer.Attach(proc)

		s.Controllers = append(s.Controllers, ctrl)
		s.Processors = append(s.Processors, proc)
	}

	if s.recorder != nil {
		s.Bus.WithRecorder(s.recorder).
			WithBlockAddress(s.Controllers[0].Cache().BlockAddress)
	}

	return s, nil
}

// Config returns the configuration the system was built with.
func (s *Simulation) Config() *config.Config {
	return s.config
}

// Run executes every trace to completion.
func (s *Simulation) Run() (Result, error) {
	logrus.Infof("simulating %d cores with %s", len(s.Processors), s.Bus.Protocol().Name())

	if err := s.Timer.Run(); err != nil {
		return s.Result(), err
	}

	result := s.Result()
	for i, stats := range result.Cores {
		if stats.Instructions == 0 {
			logrus.Warnf("core %d executed no instructions", i)
		}
	}
	logrus.Infof("simulation finished at cycle %d", result.Cycles)

	return result, nil
}

// Result returns the statistics gathered so far.
func (s *Simulation) Result() Result {
	r := Result{
		Protocol: s.Bus.Protocol().Name(),
		Bus:      s.Bus.Stats(),
	}

	for _, p := range s.Processors {
		stats := p.Stats()
		r.Cores = append(r.Cores, stats)
		r.Cycles = max(r.Cycles, stats.FinishedAt)
	}

	return r
}
