// Package window computes where the mixer panel goes on screen.
package window

import (
	"errors"
	"math"
)

var ErrNoScreen = errors.New("no screen to place the window on")

// Panel geometry in unscaled pixels.
const (
	PanelWidth       = 300
	PanelRowHeight   = 75
	PanelPadding     = 40
	PanelRightMargin = 20
	PanelBottomInset = 80 // keeps the panel above a bottom taskbar
)

// Screen is one display. Width and Height are in the same units the window
// is positioned in; Scale multiplies the panel's own dimensions.
type Screen struct {
	Width   int
	Height  int
	Scale   float64
	Current bool
	Primary bool
}

type Rect struct {
	X, Y          int
	Width, Height int
}

// Pick returns the current screen, else the primary one, else the first.
func Pick(screens []Screen) (Screen, error) {
	if len(screens) == 0 {
		return Screen{}, ErrNoScreen
	}
	for _, s := range screens {
		if s.Current {
			return s, nil
		}
	}
	for _, s := range screens {
		if s.Primary {
			return s, nil
		}
	}
	return screens[0], nil
}

// PanelPlacement sizes the panel for rows sessions and anchors it to the
// bottom-right corner of the chosen screen.
func PanelPlacement(screens []Screen, rows int) (Rect, error) {
	s, err := Pick(screens)
	if err != nil {
		return Rect{}, err
	}
	if s.Width <= 0 || s.Height <= 0 {
		return Rect{}, ErrNoScreen
	}
	scale := s.Scale
	if scale <= 0 {
		scale = 1
	}
	if rows < 0 {
		rows = 0
	}

	w := int(math.Round(PanelWidth * scale))
	h := int(math.Round(float64(rows*PanelRowHeight+PanelPadding) * scale))
	return Rect{
		X:      s.Width - (w + PanelRightMargin),
		Y:      s.Height - (h + PanelBottomInset),
		Width:  w,
		Height: h,
	}, nil
}
