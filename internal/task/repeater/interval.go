package repeater

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseInterval parses a tick interval.
//
// Supported forms:
//   - bare number of seconds: "30", "2.5"
//   - Go duration: "5s", "1m30s", "250ms"
//   - HH:MM: "00:05" (5 minutes)
//   - "@every <duration>" (robfig/cron; whole seconds, minimum 1s)
//
// Cron expressions with wall-clock fields are rejected: ticks are
// relative to the previous tick, not to the clock.
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("interval required")
	}

	if strings.HasPrefix(s, "@") {
		sched, err := cron.ParseStandard(s)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q: %w", raw, err)
		}
		every, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return 0, fmt.Errorf("invalid interval %q: only @every is supported", raw)
		}
		return positive(raw, every.Delay)
	}
	if strings.ContainsAny(s, " \t") {
		return 0, fmt.Errorf("invalid interval %q: cron expressions are not supported", raw)
	}

	if reHHMM.MatchString(s) {
		return parseHHMM(s)
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("invalid interval %q", raw)
		}
		return positive(raw, time.Duration(secs*float64(time.Second)))
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid interval %q (use seconds like '30', a duration like '5s', HH:MM like '00:05' or '@every 5s')",
			raw,
		)
	}
	return positive(raw, d)
}

func positive(raw string, d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, fmt.Errorf("interval %q must be > 0", raw)
	}
	return d, nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return positive(v, time.Duration(hh)*time.Hour+time.Duration(mm)*time.Minute)
}
