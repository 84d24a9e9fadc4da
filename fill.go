package main

import (
	"fmt"
	"time"

	"github.com/Saphs/vulkan-go-context/export"
	"github.com/Saphs/vulkan-go-context/memory"
	"github.com/Saphs/vulkan-go-context/oneshot"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newFillCommand(opts *options) *cobra.Command {
	var (
		width, height int
		color         string
		out           string
		location      string
	)
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill a width*height RGBA8 buffer on the device, read it back and export it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc := opts.cfg.Fill
			if cmd.Flags().Changed("width") {
				fc.Width = width
			}
			if cmd.Flags().Changed("height") {
				fc.Height = height
			}
			if cmd.Flags().Changed("out") {
				fc.Output = out
			}
			if cmd.Flags().Changed("location") {
				fc.Location = location
			}
			c := oneshot.Color{R: fc.Red, G: fc.Green, B: fc.Blue, A: fc.Alpha}
			if cmd.Flags().Changed("color") {
				parsed, err := oneshot.ParseColor(color)
				if err != nil {
					return err
				}
				c = parsed
			}
			return runFill(opts, fc.Width, fc.Height, c, fc.Location, fc.Timeout.Duration, fc.WaitRetries, fc.Output)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&width, "width", 0, "image width in pixels")
	flags.IntVar(&height, "height", 0, "image height in pixels")
	flags.StringVar(&color, "color", "", "fill color as R,G,B,A")
	flags.StringVar(&out, "out", "", "export file (.png, .bmp, .tif, .tiff or .rgba.lz4), empty to skip")
	flags.StringVar(&location, "location", "", "memory of the filled buffer (host-visible or device-local)")
	return cmd
}

func runFill(opts *options, width, height int, c oneshot.Color, location string, timeout time.Duration, retries int, out string) error {
	drv, err := opts.lookupDriver()
	if err != nil {
		return err
	}
	loc, err := memory.ParseLocation(location)
	if err != nil {
		return err
	}
	devCfg := opts.deviceConfig()
	res, err := oneshot.Run(drv, oneshot.Options{
		Width:       width,
		Height:      height,
		Color:       c,
		Location:    loc,
		Timeout:     timeout,
		WaitRetries: retries,
		Device:      devCfg,
		Log:         devCfg.Log,
	})
	if err != nil {
		return err
	}
	log.WithField("device", res.Device).Infof("Filled %dx%d pixels with %v in %v memory", res.Width, res.Height, c, loc)
	if len(res.Pixels) >= 4 {
		fmt.Printf("first pixel: %v\n", res.Pixels[:4])
	}
	if out == "" {
		return nil
	}
	if err := (export.FileSink{Path: out}).Export(res.Pixels, res.Width, res.Height, export.RGBA8); err != nil {
		return err
	}
	log.Infof("Exported %s", out)
	return nil
}
