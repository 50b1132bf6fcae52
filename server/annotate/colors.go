package annotate

import (
	"fmt"
	"image/color"
	"strings"
)

// Color is an RGB color serialized as "#rrggbb".
type Color color.RGBA

var (
	Cyan  = Color{R: 0, G: 255, B: 255, A: 255}
	Blue  = Color{R: 0, G: 0, B: 255, A: 255}
	Green = Color{R: 0, G: 255, B: 0, A: 255}
	Red   = Color{R: 255, G: 0, B: 0, A: 255}
	White = Color{R: 255, G: 255, B: 255, A: 255}
)

func (c Color) ToRGBA() color.RGBA {
	return color.RGBA(c)
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "#")
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return fmt.Errorf("invalid color %q: %w", string(text), err)
	}
	*c = Color{R: r, G: g, B: b, A: 255}
	return nil
}
