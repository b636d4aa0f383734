package config

import (
	"reflect"
	"sort"
	"strings"

	logx "dittoload/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe
// structured attrs for logging. Credentials are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	od, nd := oldCfg.Ditto, newCfg.Ditto
	if od.BaseURL != nd.BaseURL || od.Timeout != nd.Timeout || od.RatePerSec != nd.RatePerSec ||
		od.Username != nd.Username || od.AuthBasic != nd.AuthBasic || od.Password != nd.Password {
		changed = append(changed, "ditto")
		attrs = append(attrs,
			logx.String("ditto.base_url", nd.BaseURL),
			logx.String("ditto.timeout", nd.Timeout),
			logx.Bool("ditto.auth_set", nd.AuthBasic != "" || nd.Username != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Load, newCfg.Load) {
		changed = append(changed, "load")
		attrs = append(attrs,
			logx.String("load.namespace", newCfg.Load.Namespace),
			logx.Int("load.stations.count", newCfg.Load.Stations.Count),
			logx.Int("load.buses.count", newCfg.Load.Buses.Count),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	oldSt, newSt := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldSt != newSt {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newSt.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newSt.Path) != ""),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// LiveSections are the sections a running process applies on reload.
// Everything else takes effect on the next start.
var LiveSections = map[string]bool{"logging": true}

// RestartRequired lists changed sections that are not applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !LiveSections[s] {
			out = append(out, s)
		}
	}
	return out
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
