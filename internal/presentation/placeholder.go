package presentation

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Screen aspect of the auditorium projection surface.
const (
	DefaultScreenWidth  = 1280
	DefaultScreenHeight = 720
)

var (
	placeholderBackground = color.RGBA{255, 255, 255, 255}
	placeholderText       = color.RGBA{20, 20, 20, 255}
	placeholderSubtle     = color.RGBA{120, 120, 130, 255}
)

// RenderPlaceholder draws the opaque pre-show screen with overlay centered on
// it and writes it as PNG.
func RenderPlaceholder(w io.Writer, width, height int, overlay string) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid placeholder size %dx%d", width, height)
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(placeholderBackground)
	dc.Clear()

	cx, cy := float64(width)/2, float64(height)/2

	// Frame
	dc.SetColor(placeholderSubtle)
	dc.SetLineWidth(4)
	dc.DrawRectangle(8, 8, float64(width)-16, float64(height)-16)
	dc.Stroke()

	large := float64(height) / 6
	small := float64(height) / 24

	dc.SetColor(placeholderText)
	drawText(dc, overlay, cx, cy, large)

	dc.SetColor(placeholderSubtle)
	drawText(dc, "The presentation starts soon", cx, cy+large, small)

	return dc.EncodePNG(w)
}

// drawText prefers a system TrueType face at size px and falls back to the
// built-in bitmap face scaled up.
func drawText(dc *gg.Context, text string, x, y, size float64) {
	if path := fontPath(); path != "" {
		if err := dc.LoadFontFace(path, size); err == nil {
			dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
			return
		}
	}

	dc.SetFontFace(basicfont.Face7x13)
	scale := size / 13
	dc.Push()
	dc.ScaleAbout(scale, scale, x, y)
	dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
	dc.Pop()
}

func fontPath() string {
	paths := []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"C:\\Windows\\Fonts\\arial.ttf",
		"/System/Library/Fonts/Helvetica.ttc",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if matches, _ := filepath.Glob("*.ttf"); len(matches) > 0 {
		return matches[0]
	}
	return ""
}
