package phal

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimDefaultsToVirtual(t *testing.T) {
	info, err := NewSim().FrontPanelPortInfo(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, MediaTypeVirtual, info.MediaType)
	assert.Equal(t, HardwareStateReady, info.HWState)
}

func TestSimOverride(t *testing.T) {
	sim := NewSim()
	sim.Set(1, 3, FrontPanelPortInfo{MediaType: MediaTypeQSFP, HWState: HardwareStateEmpty})

	info, err := sim.FrontPanelPortInfo(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, MediaTypeQSFP, info.MediaType)

	info.MediaType = MediaTypeSFP
	again, err := sim.FrontPanelPortInfo(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, MediaTypeQSFP, again.MediaType, "callers get a copy")
}

func TestSimRejectsBadLocation(t *testing.T) {
	_, err := NewSim().FrontPanelPortInfo(context.Background(), 0, 1)
	assert.True(t, errors.Is(err, errors.NotValid))
}
