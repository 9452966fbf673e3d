package chassis

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cybercoder/ik8s-chassis/pkg/config"
	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

func manyPorts(nodeID uint64, n int, speed uint64) []config.SingletonPort {
	ports := make([]config.SingletonPort, 0, n)
	for i := 1; i <= n; i++ {
		ports = append(ports, port(nodeID, uint32(i), int32(i), speed))
	}
	return ports
}

func TestVerifyRunsAlongsideQueries(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.m.PushChassisConfig(chassisConfig([]uint64{1}, manyPorts(1, 64, types.Speed10G)...)))
	big := chassisConfig([]uint64{1}, manyPorts(1, 512, types.Speed25G)...)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				if err := f.m.VerifyChassisConfig(big); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for i := 0; i < 8; i++ {
		portID := uint32(i + 1)
		g.Go(func() error {
			for j := 0; j < 500; j++ {
				if _, err := f.m.GetPortState(1, portID); err != nil {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestPushIsSerializedAgainstQueries(t *testing.T) {
	f := newFixture(t, 1)
	slow := chassisConfig([]uint64{1}, manyPorts(1, 32, types.Speed10G)...)
	fast := chassisConfig([]uint64{1}, manyPorts(1, 32, types.Speed100G)...)
	require.NoError(t, f.m.PushChassisConfig(slow))

	g := errgroup.Group{}
	g.Go(func() error {
		for i := 0; i < 200; i++ {
			cfg := slow
			if i%2 == 0 {
				cfg = fast
			}
			if err := f.m.PushChassisConfig(cfg); err != nil {
				return err
			}
		}
		return nil
	})
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 200; j++ {
				cfg := f.m.ChassisConfig()
				speed := cfg.SingletonPorts[0].SpeedBps
				for _, p := range cfg.SingletonPorts {
					if p.SpeedBps != speed {
						return errors.Errorf("mixed config observed: %d and %d", speed, p.SpeedBps)
					}
				}
				resp, err := f.m.GetPortData(context.Background(), DataRequest{Kind: DataPortSpeed, NodeID: 1, PortID: 7})
				if err != nil {
					return err
				}
				if resp.SpeedBps != types.Speed10G && resp.SpeedBps != types.Speed100G {
					return errors.Errorf("unexpected speed %d", resp.SpeedBps)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestCallbacksDuringPushDoNotDeadlock(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.m.PushChassisConfig(chassisConfig([]uint64{1}, manyPorts(1, 8, types.Speed10G)...)))
	sink := &recordingWriter{}
	require.NoError(t, f.m.RegisterEventNotifyWriter(sink))

	done := make(chan error, 1)
	go func() {
		g := errgroup.Group{}
		g.Go(func() error {
			for i := 0; i < 100; i++ {
				n := 4 + i%5
				if err := f.m.PushChassisConfig(chassisConfig([]uint64{1}, manyPorts(1, n, types.Speed10G)...)); err != nil {
					return err
				}
			}
			return nil
		})
		g.Go(func() error {
			for i := 0; i < 1000; i++ {
				state := types.PortStateUp
				if i%2 == 1 {
					state = types.PortStateDown
				}
				f.drivers[1].emit(uint32(1+i%8), state)
			}
			return nil
		})
		g.Go(func() error {
			for i := 0; i < 100; i++ {
				if err := f.m.RegisterEventNotifyWriter(sink); err != nil {
					return err
				}
				if err := f.m.UnregisterEventNotifyWriter(); err != nil {
					return err
				}
			}
			return nil
		})
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("deadlock between config pushes and port callbacks")
	}

	// ports 1..4 exist in every pushed config
	for portID := uint32(1); portID <= 4; portID++ {
		state, err := f.m.GetPortState(1, portID)
		require.NoError(t, err)
		assert.NotEqual(t, types.PortStateFailed, state)
	}
}
