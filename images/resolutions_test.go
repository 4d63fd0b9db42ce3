package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolution_GetMegaPixels(t *testing.T) {
	testCases := []struct {
		name     string
		res      Resolution
		expected float64
	}{
		{"1080p", Resolutions["1080p"], 2.07},
		{"4k", Resolutions["4k"], 8.29},
		{"1mp", Resolutions["1mp"], 1.31},
		{"zero width", Resolution{Pixels: Pixels{Width: 0, Height: 1080}}, 0},
		{"negative height", Resolution{Pixels: Pixels{Width: 1920, Height: -1}}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, tc.res.GetMegaPixels(), 1e-9)
		})
	}
}

func TestResolution_String(t *testing.T) {
	assert.Equal(t, "720p (1280x720, 0.92MP)", Resolutions["720p"].String())
}

func TestParseResolution(t *testing.T) {
	res, err := ParseResolution("VGA")
	require.NoError(t, err)
	assert.Equal(t, Pixels{Width: 640, Height: 480}, res.Pixels)

	res, err = ParseResolution(" 1024x768 ")
	require.NoError(t, err)
	assert.Equal(t, Pixels{Width: 1024, Height: 768}, res.Pixels)

	for _, bad := range []string{"", "8k", "0x480", "640x", "axb", "-640x480"} {
		_, err := ParseResolution(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolutionNames_OrderedBySize(t *testing.T) {
	names := ResolutionNames()
	require.Len(t, names, len(Resolutions))
	assert.Equal(t, "qvga", names[0])
	assert.Equal(t, "4k", names[len(names)-1])
}

func TestGetHighestResolutionUnderDimensions(t *testing.T) {
	res, ok := GetHighestResolutionUnderDimensions(1920, 1200)
	require.True(t, ok)
	assert.Equal(t, "1080p", res.Name)

	_, ok = GetHighestResolutionUnderDimensions(100, 100)
	assert.False(t, ok)
}
