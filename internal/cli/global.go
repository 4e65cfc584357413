package cli

import (
	"fmt"
	"io"

	"github.com/rttools/rttools/internal/config"
	rtlog "github.com/rttools/rttools/pkg/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const appName = "rttools"

type GlobalOptions struct {
	ConfigFilePath string
	LogLevel       string

	config *config.Config
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: config.ConfigFile(),
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFilePath, "config", "c", o.ConfigFilePath, "Path to the configuration file. A default one is written if it does not exist.")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level, overrides service.logLevel from the configuration file.")
}

// Complete loads the configuration file and applies the global overrides.
func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrGenerate(o.ConfigFilePath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Service.LogLevel = o.LogLevel
	}
	o.config = cfg
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.config == nil {
		return fmt.Errorf("options were not completed")
	}
	return config.Validate(o.config)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the command logger from the service configuration. The
// returned closer releases the log file, if any.
func (o *GlobalOptions) newLogger() (*logrus.Logger, io.Closer, error) {
	log := rtlog.InitLogs()
	rtlog.SetLevel(log, o.config.Service.LogLevel)
	if !o.config.Service.LogToFile {
		return log, nopCloser{}, nil
	}
	dir, err := o.config.LogDir()
	if err != nil {
		return nil, nil, err
	}
	return log, rtlog.WithFile(log, dir, appName), nil
}
