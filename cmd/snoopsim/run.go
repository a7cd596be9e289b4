package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/snoopsim/config"
	"github.com/sarchlab/snoopsim/loader"
	"github.com/sarchlab/snoopsim/record"
	"github.com/sarchlab/snoopsim/report"
	"github.com/sarchlab/snoopsim/simulation"
	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/core"
)

// runOptions holds the run command's flags.
type runOptions struct {
	configPath string
	cores      int
	traceDir   string
	logLevel   string
	output     string
	recordFmt  string
	recordPath string
	maxTrace   int
	hostStats  bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run <protocol> <benchmark> <cache-size> <associativity> <block-size>",
	Short: "Run a benchmark under a coherence protocol",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(runOpts.logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", runOpts.logLevel, err)
		}
		logrus.SetLevel(level)

		return runBenchmark(runOpts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.configPath, "config", "", "YAML configuration file; arguments override it")
	f.IntVar(&runOpts.cores, "cores", 0, "Number of cores (default from configuration)")
	f.StringVar(&runOpts.traceDir, "trace-dir", "", "Directory holding <benchmark>_<core>.data (default <benchmark>_four)")
	f.StringVar(&runOpts.logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	f.StringVar(&runOpts.output, "output", report.FormatText, "Report format (text, yaml)")
	f.StringVar(&runOpts.recordFmt, "record", "", "Record bus transactions (sqlite, csv)")
	f.StringVar(&runOpts.recordPath, "record-path", "", "Recording file (default snoopsim_<id>.<ext>)")
	f.IntVar(&runOpts.maxTrace, "max-trace", 0, "Maximum instructions read per core, 0 for all")
	f.BoolVar(&runOpts.hostStats, "host-stats", false, "Print wall time, CPU and memory use of the simulator")
}

// buildConfig applies the positional arguments on top of the configuration
// file or the defaults.
func buildConfig(opts runOptions, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	sizes := make([]int, 3)
	names := []string{"cache size", "associativity", "block size"}
	for i, arg := range args[2:5] {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("%s %q is not a number", names[i], arg)
		}
		sizes[i] = v
	}

	cfg.Protocol = args[0]
	cfg.Cache = cache.Config{
		Size:          sizes[0],
		Associativity: sizes[1],
		BlockSize:     sizes[2],
	}
	if opts.cores > 0 {
		cfg.Cores = opts.cores
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBenchmark(opts runOptions, args []string, out, errOut io.Writer) error {
	cfg, err := buildConfig(opts, args)
	if err != nil {
		return err
	}

	benchmark := args[1]
	dir := opts.traceDir
	if dir == "" {
		dir = loader.DefaultTraceDir(benchmark)
	}

	files, err := loader.OpenBenchmark(dir, benchmark, cfg.Cores, opts.maxTrace)
	if err != nil {
		return err
	}
	defer func() {
		if err := loader.CloseAll(files); err != nil {
			logrus.Warnf("closing traces: %v", err)
		}
	}()

	traces := make([]core.Trace, len(files))
	for i, f := range files {
		traces[i] = f
	}

	var simOpts []simulation.Option
	if opts.recordFmt != "" {
		w, err := record.New(opts.recordFmt, opts.recordPath)
		if err != nil {
			return err
		}
		if err := w.Init(); err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				logrus.Errorf("closing recording: %v", err)
			}
		}()
		logrus.Infof("recording bus transactions to %s", w.Path())
		simOpts = append(simOpts, simulation.WithRecorder(w))
	}

	s, err := simulation.Build(cfg, traces, simOpts...)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := s.Run()
	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	if err := report.Write(out, opts.output, result); err != nil {
		return err
	}
	if opts.hostStats {
		writeHostStats(errOut, elapsed)
	}
	return nil
}

// writeHostStats prints the resources the simulator itself used.
func writeHostStats(w io.Writer, elapsed time.Duration) {
	fmt.Fprintf(w, "Wall time: %v\n", elapsed.Round(time.Millisecond))

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logrus.Warnf("reading host stats: %v", err)
		return
	}
	if cpu, err := p.CPUPercent(); err == nil {
		fmt.Fprintf(w, "CPU: %.1f%%\n", cpu)
	}
	if mem, err := p.MemoryInfo(); err == nil {
		fmt.Fprintf(w, "Memory (RSS): %.1f MiB\n", float64(mem.RSS)/(1<<20))
	}
}
