package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanelPlacement(t *testing.T) {
	r, err := PanelPlacement([]Screen{{Width: 1920, Height: 1080, Scale: 1}}, 4)
	require.NoError(t, err)
	assert.Equal(t, Rect{X: 1600, Y: 660, Width: 300, Height: 340}, r)
}

func TestPanelPlacementScaled(t *testing.T) {
	r, err := PanelPlacement([]Screen{{Width: 3840, Height: 2160, Scale: 1.5}}, 2)
	require.NoError(t, err)
	assert.Equal(t, 450, r.Width)
	assert.Equal(t, 285, r.Height)
	assert.Equal(t, 3840-470, r.X)
	assert.Equal(t, 2160-365, r.Y)
}

func TestPanelPlacementPicksCurrentScreen(t *testing.T) {
	screens := []Screen{
		{Width: 1280, Height: 720, Primary: true},
		{Width: 2560, Height: 1440, Current: true},
	}
	r, err := PanelPlacement(screens, 0)
	require.NoError(t, err)
	assert.Equal(t, 2560-320, r.X)
	assert.Equal(t, 40, r.Height, "zero scale treated as 1")

	s, err := Pick(screens[:1])
	require.NoError(t, err)
	assert.Equal(t, 1280, s.Width)
}

func TestPanelPlacementNoScreen(t *testing.T) {
	_, err := PanelPlacement(nil, 3)
	assert.ErrorIs(t, err, ErrNoScreen)

	_, err = PanelPlacement([]Screen{{}}, 3)
	assert.ErrorIs(t, err, ErrNoScreen)
}
