package app

import (
	"fmt"
	"strings"
	"time"

	"dittoload/internal/config"
	"dittoload/internal/ditto"
	"dittoload/internal/fleet"
	"dittoload/internal/observability/httpd"
	"dittoload/internal/storage"
	"dittoload/internal/task/repeater"
	logx "dittoload/pkg/logx"
)

// minPool is the smallest pool drawn from when no explicit pool size is set.
const minPool = 100

// classPlan is the resolved schedule of one entity class.
type classPlan struct {
	Name     string
	Count    int
	Pool     int
	Interval time.Duration
}

// plan is everything Run needs, resolved and validated once.
type plan struct {
	Namespace   string
	DryRun      bool
	Seed        int64
	Base        fleet.Location
	Duration    time.Duration
	JoinTimeout time.Duration

	Stations classPlan
	Buses    classPlan

	Ditto   ditto.Config
	Storage storage.Config
	HTTP    *httpd.Config
}

func mapPlan(cfg *config.Config) (plan, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return plan{}, err
	}

	p := plan{
		Namespace: strings.TrimSpace(cfg.Load.Namespace),
		DryRun:    cfg.Load.DryRun,
		Seed:      cfg.Load.Seed,
		Base:      fleet.DefaultBase,
	}
	if len(cfg.Load.Base) == 2 {
		p.Base = fleet.Location{cfg.Load.Base[0], cfg.Load.Base[1]}
	}

	var err error
	if p.Duration, err = config.ParseDurationField("load.duration", cfg.Load.Duration); err != nil {
		return plan{}, err
	}
	if p.JoinTimeout, err = config.ParseDurationOrDefault("load.join_timeout", cfg.Load.JoinTimeout, 5*time.Second); err != nil {
		return plan{}, err
	}
	if p.Stations, err = mapClass("stations", cfg.Load.Stations); err != nil {
		return plan{}, err
	}
	if p.Buses, err = mapClass("buses", cfg.Load.Buses); err != nil {
		return plan{}, err
	}
	if p.Ditto, err = mapDittoConfig(cfg.Ditto); err != nil {
		return plan{}, err
	}
	if p.Storage, err = mapStorageConfig(cfg.Storage); err != nil {
		return plan{}, err
	}
	if cfg.HTTP.Enabled {
		p.HTTP = &httpd.Config{Addr: cfg.HTTP.Addr, Pprof: cfg.HTTP.Pprof}
	}
	return p, nil
}

func mapClass(name string, c config.ClassConfig) (classPlan, error) {
	cp := classPlan{Name: name, Count: c.Count}
	if c.Count <= 0 {
		return cp, nil
	}
	d, err := repeater.ParseInterval(c.Interval)
	if err != nil {
		return classPlan{}, fmt.Errorf("load.%s.interval: %w", name, err)
	}
	cp.Interval = d
	cp.Pool = c.Pool
	if cp.Pool <= 0 {
		cp.Pool = max(c.Count, minPool)
	}
	return cp, nil
}

func mapDittoConfig(c config.DittoConfig) (ditto.Config, error) {
	timeout, err := config.ParseDurationOrDefault("ditto.timeout", c.Timeout, ditto.DefaultTimeout)
	if err != nil {
		return ditto.Config{}, err
	}
	return ditto.Config{
		BaseURL:    c.BaseURL,
		AuthBasic:  c.AuthBasic,
		Username:   c.Username,
		Password:   c.Password,
		Timeout:    timeout,
		RatePerSec: c.RatePerSec,
	}, nil
}

func mapStorageConfig(sc *config.StorageConfig) (storage.Config, error) {
	if sc == nil {
		return storage.Config{}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
}

func mapLogConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}
