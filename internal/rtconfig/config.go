// Grounded on utils/config.go's Config/DefaultConfig pattern: a plain
// struct of tunables plus a constructor with sane defaults, rather than a
// flag/viper-style configuration framework this teacher never reaches
// for.
package rtconfig

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds the runtime's tunable parameters (spec.md §5/§9's
// reference numbers, overridable via environment for ops use).
type Config struct {
	// Workers is the number of scheduler worker goroutines. DefaultConfig
	// sets it to runtime.GOMAXPROCS(0).
	Workers int
	// DefaultReductions is the per-scheduling-slice reduction budget
	// (spec.md §5: "default 4000").
	DefaultReductions uint32
	// GCThresholdBytes is the per-actor-heap byte count that triggers
	// TriggerGC's CompactHook, when one is installed.
	GCThresholdBytes int
	// TimerResolution bounds how finely SendAfter/receive-timeouts are
	// allowed to be specified; sub-resolution durations are rounded up.
	TimerResolution time.Duration
}

// DefaultConfig mirrors utils.DefaultConfig()'s role: the values used when
// nothing else overrides them.
func DefaultConfig() Config {
	return Config{
		Workers:           runtime.GOMAXPROCS(0),
		DefaultReductions: 4000,
		GCThresholdBytes:  16 * 64 * 1024,
		TimerResolution:   time.Millisecond,
	}
}

// FromEnv layers MESHRT_WORKERS, MESHRT_REDUCTIONS, MESHRT_GC_THRESHOLD,
// and MESHRT_TIMER_RESOLUTION (a time.ParseDuration string) over
// DefaultConfig(), ignoring any variable that's unset or fails to parse.
func FromEnv() Config {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("MESHRT_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v, ok := os.LookupEnv("MESHRT_REDUCTIONS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
			cfg.DefaultReductions = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("MESHRT_GC_THRESHOLD"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GCThresholdBytes = n
		}
	}
	if v, ok := os.LookupEnv("MESHRT_TIMER_RESOLUTION"); ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TimerResolution = d
		}
	}
	return cfg
}
