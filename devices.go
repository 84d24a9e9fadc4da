package main

import (
	"fmt"

	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDevicesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the physical devices of the configured driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drv, err := opts.lookupDriver()
			if err != nil {
				return err
			}
			devices, err := enumerate(drv, opts.cfg.App.Name)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d physical device(s)\n", drv.Name(), len(devices))
			for _, pd := range devices {
				fmt.Print(pd.TableString())
			}
			return nil
		},
	}
}

// enumerate lists the devices of a throwaway instance without selecting or opening any of them.
func enumerate(drv gpu.Driver, appName string) ([]gpu.PhysicalDeviceInfo, error) {
	if err := drv.Load(nil); err != nil {
		return nil, errors.Wrap(err, "load driver")
	}
	inst, err := drv.CreateInstance(gpu.InstanceInfo{AppName: appName, APIVersion: gpu.APIVersion13})
	if err != nil {
		return nil, errors.Wrap(err, "create instance")
	}
	defer inst.Destroy()
	return inst.PhysicalDevices(nil)
}
