package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Saphs/vulkan-go-context/device"
	"github.com/Saphs/vulkan-go-context/gpu"
	"github.com/Saphs/vulkan-go-context/gpu/soft"
	"github.com/Saphs/vulkan-go-context/wsi"
	"github.com/Saphs/vulkan-go-context/wsi/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func softFactory(trace *soft.Trace) ContextFactory {
	return DeviceFactory(soft.New(soft.Config{Trace: trace}), device.Config{AppName: "engine_test"})
}

func TestRegistryAddAndClose(t *testing.T) {
	trace := &soft.Trace{}
	sys := headless.New()
	eng, err := New(sys, softFactory(trace), Config{Primary: wsi.Attributes{Title: "primary"}}, nil)
	require.NoError(t, err)
	primary := eng.Primary()
	assert.Equal(t, []wsi.WindowID{primary}, eng.Windows())
	assert.Equal(t, eng.Windows(), eng.Renderers())

	second, err := eng.CreateWindow(sys, wsi.Attributes{Title: "second"})
	require.NoError(t, err)
	assert.Len(t, eng.Windows(), 2)
	assert.Equal(t, eng.Windows(), eng.Renderers())
	r, ok := eng.Renderer(second)
	require.True(t, ok)
	assert.True(t, r.Context().HasSurface())

	eng.WindowEvent(sys, second, wsi.Resized{Width: 10, Height: 10})
	eng.WindowEvent(sys, second, wsi.CloseRequested{})
	assert.Equal(t, []wsi.WindowID{primary}, eng.Windows())
	assert.Equal(t, eng.Windows(), eng.Renderers())
	assert.Equal(t, []wsi.WindowID{primary}, sys.Windows())
	assert.False(t, sys.ExitRequested())

	ids := trace.Instances()
	require.Len(t, ids, 2)
	assert.Equal(t, []soft.Object{soft.ObjDevice, soft.ObjSurface, soft.ObjInstance}, trace.Destroyed(ids[1]))
	assert.Empty(t, trace.Destroyed(ids[0]))

	eng.WindowEvent(sys, primary, wsi.CloseRequested{})
	assert.True(t, sys.ExitRequested())
	assert.Len(t, eng.Windows(), 1, "closing the primary window only signals exit")

	eng.Destroy()
	assert.Empty(t, eng.Windows())
	assert.Empty(t, eng.Renderers())
	assert.Empty(t, sys.Windows())
	assert.Equal(t, []soft.Object{soft.ObjDevice, soft.ObjSurface, soft.ObjInstance}, trace.Destroyed(ids[0]))
}

func TestFailedContextDestroysWindow(t *testing.T) {
	sys := headless.New()
	calls := 0
	factory := func(win wsi.Window) (*device.Context, error) {
		calls++
		if calls == 2 {
			return nil, gpu.NewError(gpu.ErrNoSuitableDevice, "Select", errors.New("no present support"))
		}
		return softFactory(nil)(win)
	}
	eng, err := New(sys, factory, Config{}, nil)
	require.NoError(t, err)

	_, err = eng.CreateWindow(sys, wsi.Attributes{Title: "broken"})
	assert.ErrorIs(t, err, gpu.ErrNoSuitableDevice)
	assert.Contains(t, err.Error(), "create device context for")
	assert.Contains(t, fmt.Sprintf("%+v", err), "engine.(*Engine).CreateWindow")
	assert.Len(t, eng.Windows(), 1)
	assert.Len(t, eng.Renderers(), 1)
	assert.Equal(t, eng.Windows(), sys.Windows())
	eng.Destroy()
}

func TestBootstrapFailure(t *testing.T) {
	tests := []struct {
		name    string
		sys     *headless.System
		factory ContextFactory
	}{
		{
			name:    "window",
			sys:     &headless.System{CreateFaults: []error{errors.New("no display")}},
			factory: softFactory(nil),
		},
		{
			name: "context",
			sys:  headless.New(),
			factory: DeviceFactory(soft.New(soft.Config{Faults: soft.Faults{Device: errors.New("lost")}}),
				device.Config{}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.sys, tt.factory, Config{}, nil)
			assert.ErrorIs(t, err, ErrBootstrap)
			assert.Empty(t, tt.sys.Windows())
		})
	}
}

// observer wraps an App to look at the engine right before it is torn down.
type observer struct {
	*App
	beforeSuspend []wsi.WindowID
}

func (o *observer) Suspended(loop wsi.Loop) {
	if eng := o.Engine(); eng != nil {
		o.beforeSuspend = eng.Windows()
	}
	o.App.Suspended(loop)
}

func TestAppLifecycle(t *testing.T) {
	trace := &soft.Trace{}
	sys := headless.New(
		headless.Step{Window: 2, Event: wsi.KeyPressed{Key: "Space"}},
		headless.Step{Window: 2, Event: wsi.CloseRequested{}},
		headless.Step{Window: 1, Event: wsi.Focused{Gained: true}},
		headless.Step{Window: 1, Event: wsi.CloseRequested{}},
		headless.Step{Window: 1, Event: wsi.Resized{Width: 1, Height: 1}},
	)
	app := NewApp(softFactory(trace), Config{
		Primary:       wsi.Attributes{Title: "primary"},
		Secondary:     wsi.Attributes{Title: "secondary"},
		OpenSecondary: true,
	}, nil)
	assert.Equal(t, Uninitialized, app.State())

	o := &observer{App: app}
	require.NoError(t, sys.Run(o))

	require.NoError(t, app.Err())
	assert.True(t, sys.ExitRequested())
	assert.Equal(t, []wsi.WindowID{1}, o.beforeSuspend)
	assert.Equal(t, Uninitialized, app.State())
	assert.Nil(t, app.Engine())
	assert.Empty(t, sys.Windows())

	ids := trace.Instances()
	require.Len(t, ids, 2)
	for _, id := range ids {
		assert.Equal(t, []soft.Object{soft.ObjDevice, soft.ObjSurface, soft.ObjInstance}, trace.Destroyed(id))
	}
}

func TestAppSkipsFailingSecondary(t *testing.T) {
	sys := &headless.System{CreateFaults: []error{nil, errors.New("out of windows")}}
	app := NewApp(softFactory(nil), Config{OpenSecondary: true}, nil)

	app.Resumed(sys)
	require.NoError(t, app.Err())
	assert.Equal(t, Running, app.State())
	assert.Len(t, app.Engine().Windows(), 1)
	app.Suspended(sys)
	assert.Equal(t, Uninitialized, app.State())
}

func TestAppBootstrapFailureExits(t *testing.T) {
	sys := &headless.System{CreateFaults: []error{errors.New("no display")}}
	app := NewApp(softFactory(nil), Config{}, nil)

	require.NoError(t, sys.Run(app))
	assert.ErrorIs(t, app.Err(), ErrBootstrap)
	assert.True(t, sys.ExitRequested())
	assert.Equal(t, Uninitialized, app.State())
}
