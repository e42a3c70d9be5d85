package media

import (
	"math"
)

// Orientation of a video frame.
type Orientation string

const (
	// OrientationPortrait is used when height exceeds width.
	OrientationPortrait Orientation = "portrait"
	// OrientationLandscape is used when width is greater than or equal to height.
	OrientationLandscape Orientation = "landscape"
)

// Layout defaults.
const (
	DefaultWidth               = 1920
	DefaultHeight              = 1080
	DefaultMargin              = 40.0
	DefaultPortraitWidthRatio  = 0.28
	DefaultLandscapeWidthRatio = 0.22

	minWidthRatio = 0.01
	maxWidthRatio = 1.0
)

// WatermarkOptions tunes where and how large the watermark is drawn.
// Nil fields fall back to their defaults.
type WatermarkOptions struct {
	// Orientation forces portrait or landscape layout. Any other value
	// derives the orientation from the probed dimensions.
	Orientation Orientation
	// Margin is the distance in pixels from the bottom-left corner.
	Margin *float64
	// PortraitWidthRatio is the watermark width relative to the video width
	// for portrait videos.
	PortraitWidthRatio *float64
	// LandscapeWidthRatio is the same for landscape videos.
	LandscapeWidthRatio *float64
}

// Layout is the resolved placement of a watermark on a video.
type Layout struct {
	Orientation Orientation
	// TargetWidth is the watermark width in pixels; height keeps aspect ratio.
	TargetWidth int
	Margin      float64
}

// ComputeLayout resolves the watermark placement for a video of the given
// dimensions. Non-positive dimensions are replaced with 1920x1080.
func ComputeLayout(width, height int, opts WatermarkOptions) Layout {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	orientation := opts.Orientation
	if orientation != OrientationPortrait && orientation != OrientationLandscape {
		orientation = OrientationPortrait
		if width >= height {
			orientation = OrientationLandscape
		}
	}

	ratio := clampRatio(opts.LandscapeWidthRatio, DefaultLandscapeWidthRatio)
	if orientation == OrientationPortrait {
		ratio = clampRatio(opts.PortraitWidthRatio, DefaultPortraitWidthRatio)
	}

	target := int(math.Round(float64(width) * ratio))
	if target < 1 {
		target = 1
	}

	margin := DefaultMargin
	if opts.Margin != nil && isFinite(*opts.Margin) {
		margin = *opts.Margin
	}

	return Layout{
		Orientation: orientation,
		TargetWidth: target,
		Margin:      margin,
	}
}

// clampRatio returns value limited to [0.01, 1.0], or fallback when value is
// missing or not finite.
func clampRatio(value *float64, fallback float64) float64 {
	if value == nil || !isFinite(*value) {
		return fallback
	}
	return math.Max(minWidthRatio, math.Min(maxWidthRatio, *value))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
