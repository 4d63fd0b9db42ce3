package images

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// AspectRatio represents an aspect ratio by name (e.g., "16:9").
type AspectRatio string

// Common camera aspect ratios.
const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
	AspectRatio54  AspectRatio = "5:4"
)

// Pixels describes the exact dimensions of a resolution.
type Pixels struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Resolution is a named capture resolution.
type Resolution struct {
	Name        string
	AspectRatio AspectRatio
	Pixels      Pixels
}

// GetMegaPixels returns the megapixel count rounded to two decimals
// (e.g., 2.07 for 1080p).
func (r Resolution) GetMegaPixels() float64 {
	if r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Pixels.Width*r.Pixels.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Pixels.Width, r.Pixels.Height, r.GetMegaPixels())
}

// Resolutions holds the camera presets accepted by ParseResolution, keyed by
// lower-case name.
var Resolutions = map[string]Resolution{
	"qvga":  {Name: "qvga", AspectRatio: AspectRatio43, Pixels: Pixels{Width: 320, Height: 240}},
	"vga":   {Name: "vga", AspectRatio: AspectRatio43, Pixels: Pixels{Width: 640, Height: 480}},
	"svga":  {Name: "svga", AspectRatio: AspectRatio43, Pixels: Pixels{Width: 800, Height: 600}},
	"720p":  {Name: "720p", AspectRatio: AspectRatio169, Pixels: Pixels{Width: 1280, Height: 720}},
	"1mp":   {Name: "1mp", AspectRatio: AspectRatio54, Pixels: Pixels{Width: 1280, Height: 1024}},
	"1080p": {Name: "1080p", AspectRatio: AspectRatio169, Pixels: Pixels{Width: 1920, Height: 1080}},
	"1440p": {Name: "1440p", AspectRatio: AspectRatio169, Pixels: Pixels{Width: 2560, Height: 1440}},
	"4k":    {Name: "4k", AspectRatio: AspectRatio169, Pixels: Pixels{Width: 3840, Height: 2160}},
}

// ResolutionNames returns the preset names ordered by pixel count.
func ResolutionNames() []string {
	names := make([]string, 0, len(Resolutions))
	for name := range Resolutions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := Resolutions[names[i]].Pixels, Resolutions[names[j]].Pixels
		return a.Width*a.Height < b.Width*b.Height
	})
	return names
}

// ParseResolution resolves a preset name or an explicit "WIDTHxHEIGHT" size.
//
// Arguments:
//   - value: A key of Resolutions (case-insensitive) or a size such as "1024x768".
//
// Returns:
//   - Resolution: The resolution.
//   - error: An error if the value is neither a preset nor a positive size.
func ParseResolution(value string) (Resolution, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	if res, ok := Resolutions[key]; ok {
		return res, nil
	}

	w, h, found := strings.Cut(key, "x")
	if !found {
		return Resolution{}, fmt.Errorf("unknown resolution %q, want one of %s or WIDTHxHEIGHT",
			value, strings.Join(ResolutionNames(), ", "))
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q", value)
	}

	return Resolution{Name: key, Pixels: Pixels{Width: width, Height: height}}, nil
}

// GetHighestResolutionUnderDimensions returns the largest preset that fits in
// width x height.
//
// Arguments:
//   - width: The maximum width.
//   - height: The maximum height.
//
// Returns:
//   - Resolution: The largest fitting preset.
//   - bool: False when no preset fits.
func GetHighestResolutionUnderDimensions(width, height int) (Resolution, bool) {
	var highest Resolution
	var found bool

	for _, res := range Resolutions {
		if res.Pixels.Width <= width && res.Pixels.Height <= height {
			if !found || res.GetMegaPixels() > highest.GetMegaPixels() {
				highest = res
				found = true
			}
		}
	}
	return highest, found
}
