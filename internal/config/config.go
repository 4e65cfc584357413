package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rttools/rttools/pkg/thread"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"
)

const (
	appName = "rttools"
)

const (
	BackendGoroutine = "goroutine"
	BackendLocked    = "locked"
	BackendRealTime  = "realtime"
)

type Config struct {
	Service    *svcConfig        `json:"service,omitempty"`
	Timeseries *timeseriesConfig `json:"timeseries,omitempty"`
	Thread     *threadConfig     `json:"thread,omitempty"`
	Demo       *demoConfig       `json:"demo,omitempty"`
	Check      *checkConfig      `json:"check,omitempty"`
	Metrics    *metricsConfig    `json:"metrics,omitempty"`
	Tracing    *tracingConfig    `json:"tracing,omitempty"`
	Pprof      *pprofConfig      `json:"pprof,omitempty"`
}

type svcConfig struct {
	LogLevel  string `json:"logLevel,omitempty"`
	LogDir    string `json:"logDir,omitempty"`
	LogToFile bool   `json:"logToFile,omitempty"`
}

type timeseriesConfig struct {
	Capacity       int      `json:"capacity,omitempty"`
	StartIndex     int64    `json:"startIndex,omitempty"`
	DefaultTimeout Duration `json:"defaultTimeout,omitempty"`
	PollInterval   Duration `json:"pollInterval,omitempty"`
}

type threadConfig struct {
	Backend    string `json:"backend,omitempty"`
	Policy     string `json:"policy,omitempty"`
	Priority   int    `json:"priority,omitempty"`
	LockMemory bool   `json:"lockMemory,omitempty"`
}

type demoConfig struct {
	Items        int     `json:"items,omitempty"`
	Frequency    float64 `json:"frequency,omitempty"`
	Iterations   int     `json:"iterations,omitempty"`
	WaitForIndex int64   `json:"waitForIndex,omitempty"`
}

type checkConfig struct {
	Frequency float64  `json:"frequency,omitempty"`
	Tolerance float64  `json:"tolerance,omitempty"`
	Ticks     int      `json:"ticks,omitempty"`
	Period    Duration `json:"period,omitempty"`
}

type metricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Address string `json:"address,omitempty"`
	// HostSampleInterval is how often host CPU, memory and disk usage are sampled.
	HostSampleInterval Duration `json:"hostSampleInterval,omitempty"`
}

type tracingConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Insecure bool   `json:"insecure,omitempty"`
}

type pprofConfig struct {
	Enabled bool `json:"enabled,omitempty"`
	Port    int  `json:"port,omitempty"`
	// ContentionRate samples one in ContentionRate mutex and blocking events, 0 disables it.
	ContentionRate int `json:"contentionRate,omitempty"`
}

// Duration is a time.Duration written as a string ("250ms") in config files.
// A negative duration means no timeout.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, "."+appName)
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LogDir returns the configured log directory, creating it if needed.
func (cfg *Config) LogDir() (string, error) {
	dir := filepath.Join(ConfigDir(), "logs")
	if cfg.Service != nil && cfg.Service.LogDir != "" {
		dir = cfg.Service.LogDir
	}
	if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}
	return dir, nil
}

func NewDefault() *Config {
	c := &Config{
		Service: &svcConfig{
			LogLevel: "info",
		},
		Timeseries: &timeseriesConfig{
			Capacity:       10,
			StartIndex:     0,
			DefaultTimeout: Duration(time.Second),
			PollInterval:   Duration(time.Second),
		},
		Thread: &threadConfig{
			Backend:  BackendGoroutine,
			Policy:   string(thread.PolicyFIFO),
			Priority: 80,
		},
		Demo: &demoConfig{
			Items:        20,
			Frequency:    10,
			Iterations:   3,
			WaitForIndex: 15,
		},
		Check: &checkConfig{
			Frequency: 500,
			Tolerance: 0.9,
			Ticks:     1000,
			Period:    Duration(2 * time.Millisecond),
		},
		Metrics: &metricsConfig{
			Enabled:            false,
			Address:            ":15690",
			HostSampleInterval: Duration(5 * time.Second),
		},
		Tracing: &tracingConfig{
			Enabled: false,
		},
		Pprof: &pprofConfig{
			Enabled:        false,
			Port:           15689,
			ContentionRate: 0,
		},
	}
	return c
}

func NewFromFile(cfgFile string) (*Config, error) {
	cfg, err := Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrGenerate(cfgFile string) (*Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(cfgFile), os.FileMode(0755)); err != nil {
			return nil, fmt.Errorf("creating directory for config file: %v", err)
		}
		if err := Save(NewDefault(), cfgFile); err != nil {
			return nil, err
		}
	}
	return NewFromFile(cfgFile)
}

// Load reads cfgFile on top of the defaults, so sections missing from the
// file keep their default values.
func Load(cfgFile string) (*Config, error) {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %v", err)
	}
	c := NewDefault()
	if err := yaml.Unmarshal(contents, c); err != nil {
		return nil, fmt.Errorf("decoding config: %v", err)
	}
	return c, nil
}

func Save(cfg *Config, cfgFile string) error {
	contents, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %v", err)
	}
	if err := os.WriteFile(cfgFile, contents, 0600); err != nil {
		return fmt.Errorf("writing config file: %v", err)
	}
	return nil
}

func Validate(cfg *Config) error {
	var errs []error
	if cfg.Service != nil && cfg.Service.LogLevel != "" {
		if _, err := logrus.ParseLevel(cfg.Service.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("service.logLevel: %w", err))
		}
	}
	if ts := cfg.Timeseries; ts != nil {
		if ts.Capacity <= 0 {
			errs = append(errs, fmt.Errorf("timeseries.capacity must be greater than 0"))
		}
		if ts.PollInterval <= 0 {
			errs = append(errs, fmt.Errorf("timeseries.pollInterval must be greater than 0"))
		}
		if ts.DefaultTimeout == 0 {
			errs = append(errs, fmt.Errorf("timeseries.defaultTimeout must not be 0, use a negative duration to wait forever"))
		}
	}
	if th := cfg.Thread; th != nil {
		switch th.Backend {
		case BackendGoroutine, BackendLocked:
		case BackendRealTime:
			rt := thread.RealTime{Policy: thread.Policy(th.Policy), Priority: th.Priority}
			if err := rt.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("thread: %w", err))
			}
		default:
			errs = append(errs, fmt.Errorf("thread.backend must be one of %s, %s, %s", BackendGoroutine, BackendLocked, BackendRealTime))
		}
	}
	if d := cfg.Demo; d != nil {
		if d.Items <= 0 || d.Iterations <= 0 {
			errs = append(errs, fmt.Errorf("demo.items and demo.iterations must be greater than 0"))
		}
		if d.Frequency <= 0 {
			errs = append(errs, fmt.Errorf("demo.frequency must be greater than 0"))
		}
	}
	if c := cfg.Check; c != nil {
		if c.Frequency <= 0 || c.Ticks <= 0 || c.Period <= 0 {
			errs = append(errs, fmt.Errorf("check.frequency, check.ticks and check.period must be greater than 0"))
		}
		if c.Tolerance <= 0 || c.Tolerance > 1 {
			errs = append(errs, fmt.Errorf("check.tolerance must be in (0, 1]"))
		}
	}
	if m := cfg.Metrics; m != nil && m.Enabled {
		if m.Address == "" {
			errs = append(errs, fmt.Errorf("metrics.address is required when metrics are enabled"))
		}
		if m.HostSampleInterval <= 0 {
			errs = append(errs, fmt.Errorf("metrics.hostSampleInterval must be greater than 0"))
		}
	}
	if tr := cfg.Tracing; tr != nil && tr.Enabled && tr.Endpoint == "" {
		errs = append(errs, fmt.Errorf("tracing.endpoint is required when tracing is enabled"))
	}
	if p := cfg.Pprof; p != nil && p.Enabled {
		if p.Port <= 0 || p.Port > 65535 {
			errs = append(errs, fmt.Errorf("pprof.port must be in [1, 65535]"))
		}
		if p.ContentionRate < 0 {
			errs = append(errs, fmt.Errorf("pprof.contentionRate must not be negative"))
		}
	}
	return errors.Join(errs...)
}

// Spawner builds the thread backend selected by the configuration.
func (cfg *Config) Spawner(log logrus.FieldLogger) thread.Spawner {
	th := cfg.Thread
	if th == nil {
		return thread.Goroutine{Log: log}
	}
	switch th.Backend {
	case BackendLocked:
		return thread.LockedThread{Log: log}
	case BackendRealTime:
		return thread.RealTime{
			Policy:     thread.Policy(th.Policy),
			Priority:   th.Priority,
			LockMemory: th.LockMemory,
			Log:        log,
		}
	default:
		return thread.Goroutine{Log: log}
	}
}

func (cfg *Config) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
