package entity

import "math"

// Resolution is a named bounding box for transcode targets. Output dimensions
// fit within the box preserving the source aspect ratio.
type Resolution struct {
	Label  string
	Width  int
	Height int
}

var resolutions = map[string]Resolution{
	"240p":  {Label: "240p", Width: 426, Height: 240},
	"360p":  {Label: "360p", Width: 640, Height: 360},
	"480p":  {Label: "480p", Width: 854, Height: 480},
	"720p":  {Label: "720p", Width: 1280, Height: 720},
	"1080p": {Label: "1080p", Width: 1920, Height: 1080},
	"1440p": {Label: "1440p", Width: 2560, Height: 1440},
	"2160p": {Label: "2160p", Width: 3840, Height: 2160},
}

func LookupResolution(label string) (Resolution, bool) {
	r, ok := resolutions[label]
	return r, ok
}

// FitWithin scales source dimensions to fit inside the target box, preserving
// aspect ratio and never upscaling. Both results are rounded down to even
// numbers, which common video codecs require.
func FitWithin(srcWidth, srcHeight int, box Resolution) (int, int) {
	if srcWidth <= 0 || srcHeight <= 0 {
		return box.Width &^ 1, box.Height &^ 1
	}

	scale := float64(box.Width) / float64(srcWidth)
	if s := float64(box.Height) / float64(srcHeight); s < scale {
		scale = s
	}
	if scale > 1 {
		scale = 1
	}

	w := int(math.Round(float64(srcWidth)*scale)) &^ 1
	h := int(math.Round(float64(srcHeight)*scale)) &^ 1
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return w, h
}
