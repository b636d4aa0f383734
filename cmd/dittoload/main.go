package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"dittoload/internal/app"
	"dittoload/internal/config"
	logx "dittoload/pkg/logx"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath = flag.String("config", "", "path to config yaml/json (optional)")
		envFile = flag.String("env-file", ".env", "dotenv file with DITTO_* variables (skipped if missing)")

		namespace        = flag.String("namespace", config.DefaultNamespace, "Thing namespace to use (prefix)")
		stationsCount    = flag.Int("stations-count", config.DefaultStationsCount, "number of stations to send each interval")
		stationsInterval = flag.String("stations-interval", config.DefaultStationsInterval, "time between station batches (seconds or duration)")
		bussesCount      = flag.Int("busses-count", config.DefaultBusesCount, "number of busses to send each interval")
		bussesInterval   = flag.String("busses-interval", config.DefaultBusesInterval, "time between bus batches (seconds or duration)")
		duration         = flag.String("duration", "0", "total run time (seconds or duration); 0 runs until interrupted")
		dryRun           = flag.Bool("dry-run", false, "print actions instead of calling Ditto")
		yes              = flag.Bool("yes", false, "skip confirmation prompt and proceed")
		seed             = flag.Int64("seed", 0, "random seed; 0 seeds from the clock")
		logLevel         = flag.String("log-level", "", "override logging.level")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, "fatal: env file:", err)
		return 1
	}

	// Explicit flags win over env, env wins over the file.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	overlay := func(cfg *config.Config) {
		config.ApplyEnv(cfg, os.LookupEnv)
		if set["namespace"] {
			cfg.Load.Namespace = *namespace
		}
		if set["stations-count"] {
			cfg.Load.Stations.Count = *stationsCount
		}
		if set["stations-interval"] {
			cfg.Load.Stations.Interval = *stationsInterval
		}
		if set["busses-count"] {
			cfg.Load.Buses.Count = *bussesCount
		}
		if set["busses-interval"] {
			cfg.Load.Buses.Interval = *bussesInterval
		}
		if set["duration"] {
			cfg.Load.Duration = *duration
		}
		if set["dry-run"] {
			cfg.Load.DryRun = *dryRun
		}
		if set["seed"] {
			cfg.Load.Seed = *seed
		}
		if set["log-level"] {
			cfg.Logging.Level = *logLevel
		}
	}

	cfgm := config.NewManager(*cfgPath)
	cfgm.SetOverlay(overlay)
	cfg, err := cfgm.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal: config:", err)
		return 1
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer logs.Close()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	if !cfg.Load.DryRun && !*yes {
		prompt := fmt.Sprintf("Proceed to continuously PUT randomized Things to Ditto? (stations every %s, busses every %s)",
			describeInterval(cfg.Load.Stations), describeInterval(cfg.Load.Buses))
		if !app.Confirm(os.Stdin, os.Stdout, prompt) {
			fmt.Println("Aborted by user.")
			return 0
		}
	}

	a, err := app.New(cfg,
		app.WithLogger(log),
		app.WithLogService(logs),
		app.WithConfigManager(cfgm),
	)
	if err != nil {
		log.Error("fatal: setup", logx.Err(err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintln(os.Stderr, "Started station and bus repeaters. Press Ctrl-C to stop.")
	if err := a.Run(ctx); err != nil {
		log.Error("fatal", logx.Err(err))
		return 1
	}
	fmt.Fprintln(os.Stderr, "Stopped.")
	return 0
}

func describeInterval(c config.ClassConfig) string {
	if c.Count <= 0 {
		return "never"
	}
	if _, err := strconv.ParseFloat(c.Interval, 64); err == nil {
		return c.Interval + "s"
	}
	return c.Interval
}
