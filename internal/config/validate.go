package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"dittoload/internal/task/repeater"
	logx "dittoload/pkg/logx"
)

// Validate checks cfg without side effects. All problems are reported at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	ns := strings.TrimSpace(cfg.Load.Namespace)
	switch {
	case ns == "":
		add("load.namespace: required")
	case strings.ContainsAny(ns, ": \t/"):
		add("load.namespace: %q must not contain ':', '/' or whitespace", ns)
	}

	for _, c := range []struct {
		path string
		cls  ClassConfig
	}{
		{"load.stations", cfg.Load.Stations},
		{"load.buses", cfg.Load.Buses},
	} {
		if c.cls.Count < 0 {
			add("%s.count: must be >= 0", c.path)
		}
		if c.cls.Pool < 0 {
			add("%s.pool: must be >= 0", c.path)
		}
		if c.cls.Count > 0 {
			if _, err := repeater.ParseInterval(c.cls.Interval); err != nil {
				add("%s.interval: %w", c.path, err)
			}
		}
	}

	if _, err := ParseDurationField("load.duration", cfg.Load.Duration); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("load.join_timeout", cfg.Load.JoinTimeout); err != nil {
		errs = append(errs, err)
	}
	if n := len(cfg.Load.Base); n != 0 {
		if n != 2 {
			add("load.base: want [lat, lon], got %d values", n)
		} else if math.Abs(cfg.Load.Base[0]) > 90 || math.Abs(cfg.Load.Base[1]) > 180 {
			add("load.base: %v out of range", cfg.Load.Base)
		}
	}

	if _, err := ParseDurationField("ditto.timeout", cfg.Ditto.Timeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Ditto.RatePerSec < 0 {
		add("ditto.rate_per_sec: must be >= 0")
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add("logging.level: unknown level %q", lvl)
	}

	if st := cfg.Storage; st != nil {
		switch d := strings.ToLower(strings.TrimSpace(st.Driver)); d {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				add("storage.path: required for driver %q", d)
			}
		default:
			add("storage.driver: unknown driver %q", st.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
