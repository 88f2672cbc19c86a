package driver

import (
	"fmt"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config controls one compilation. Zero values fall back to the defaults,
// so a partial TOML file only overrides what it names.
type Config struct {
	// Passes names the transform pipeline in execution order.
	Passes []string `toml:"passes"`
	// FixpointIters re-runs the pipeline until quiescent, capped at this
	// many iterations. 1 runs it once.
	FixpointIters int `toml:"fixpoint_iters"`
	// MaxLocals bounds each function's frame size. 0 means unlimited.
	MaxLocals int `toml:"max_locals"`
	// Parallelism caps concurrently compiled functions. 0 means GOMAXPROCS.
	Parallelism int `toml:"parallelism"`
}

// DefaultConfig returns the standard pipeline.
func DefaultConfig() Config {
	return Config{
		Passes:        []string{"constfold", "dce"},
		FixpointIters: 8,
		Parallelism:   runtime.GOMAXPROCS(0),
	}
}

// LoadConfig reads a TOML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return cfg, fmt.Errorf("load config %s: unknown key %s", path, undec[0])
	}
	return cfg.normalize(), nil
}

func (c Config) normalize() Config {
	if c.FixpointIters <= 0 {
		c.FixpointIters = 1
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.GOMAXPROCS(0)
	}
	return c
}
