// Package media provides the watermark compositor for stored videos.
package media

import "context"

// Watermarker overlays a watermark image onto a video file in place.
type Watermarker interface {
	// Apply composites watermarkPath onto videoPath and replaces videoPath
	// with the result. On error videoPath is left untouched.
	Apply(ctx context.Context, videoPath, watermarkPath string, opts WatermarkOptions) error
}

// Compile-time check that FFmpegProcessor implements Watermarker.
var _ Watermarker = (*FFmpegProcessor)(nil)
