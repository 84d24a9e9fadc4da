package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/Saphs/vulkan-go-context/config"
	"github.com/Saphs/vulkan-go-context/device"
	"github.com/Saphs/vulkan-go-context/gpu"
	_ "github.com/Saphs/vulkan-go-context/gpu/soft"
	_ "github.com/Saphs/vulkan-go-context/gpu/vulkan"
	"github.com/Saphs/vulkan-go-context/logging"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const programName = "vkctx"

func init() {
	// SDL and the Vulkan loader expect every call from the main thread
	runtime.LockOSThread()
}

type options struct {
	configPath string
	driver     string
	logLevel   string

	cfg config.Configuration
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           programName,
		Short:         "Bring up a Vulkan device context, fill a buffer and read it back",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "configuration file (.toml, .yaml or .yml)")
	flags.StringVar(&opts.driver, "driver", "", fmt.Sprintf("gpu driver, one of %v", gpu.Drivers()))
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newFillCommand(opts), newDevicesCommand(opts), newWindowsCommand(opts))
	return root
}

// load reads the configuration and applies the persistent flags on top of it.
func (o *options) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.driver != "" {
		cfg.Driver = o.driver
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := logging.Setup(cfg.Log); err != nil {
		return err
	}
	log.Debugf("Using GoLang: [%s]", runtime.Version())
	o.cfg = cfg
	return nil
}

func (o *options) lookupDriver() (gpu.Driver, error) {
	drv, ok := gpu.Lookup(o.cfg.Driver)
	if !ok {
		return nil, errors.Errorf("unknown driver %q, registered drivers: %v", o.cfg.Driver, gpu.Drivers())
	}
	return drv, nil
}

func (o *options) deviceConfig() device.Config {
	return device.Config{
		AppName:    o.cfg.App.Name,
		Validation: o.cfg.Validation.Enabled,
		Layers:     o.cfg.Validation.Layers,
		Log:        log.StandardLogger(),
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Errorf("%s: %v", programName, err)
		os.Exit(1)
	}
}
