package main

import (
	"github.com/Saphs/vulkan-go-context/engine"
	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/Saphs/vulkan-go-context/gpu/soft"
	"github.com/Saphs/vulkan-go-context/wsi"
	"github.com/Saphs/vulkan-go-context/wsi/headless"
	"github.com/Saphs/vulkan-go-context/wsi/sdl"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newWindowsCommand(opts *options) *cobra.Command {
	var headlessRun bool
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "Open a primary and a secondary window with one device context each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sys wsi.System
				drv gpu.Driver
				err error
			)
			if headlessRun {
				// close the secondary window first, then the primary one
				sys = headless.New(
					headless.Step{Window: 2, Event: wsi.CloseRequested{}},
					headless.Step{Window: 1, Event: wsi.CloseRequested{}},
				)
				drv, _ = gpu.Lookup(soft.DriverName)
			} else {
				sys = sdl.New()
				if drv, err = opts.lookupDriver(); err != nil {
					return err
				}
			}
			return runWindows(opts, sys, drv)
		},
	}
	cmd.Flags().BoolVar(&headlessRun, "headless", false, "use in-memory windows and the soft driver")
	return cmd
}

func runWindows(opts *options, sys wsi.System, drv gpu.Driver) error {
	wc := opts.cfg.Window
	devCfg := opts.deviceConfig()
	app := engine.NewApp(engine.DeviceFactory(drv, devCfg), engine.Config{
		Primary:       wsi.Attributes{Title: wc.Title, Width: wc.Width, Height: wc.Height},
		Secondary:     wsi.Attributes{Title: wc.SecondaryTitle, Width: wc.Width, Height: wc.Height},
		OpenSecondary: wc.Secondary,
	}, devCfg.Log)
	if err := sys.Run(app); err != nil {
		return err
	}
	if err := app.Err(); err != nil {
		return err
	}
	log.Info("All windows closed")
	return nil
}
