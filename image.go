package boxblur

import (
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"
)

// Image is a host-side 2-D array of float vectors, row-major.
type Image struct {
	Width, Height int
	Components    int
	Pix           []float32
}

// NewImage allocates a zeroed image.
func NewImage(width, height, components int) *Image {
	checkShape(width, height, components)
	return &Image{
		Width:      width,
		Height:     height,
		Components: components,
		Pix:        make([]float32, width*height*components),
	}
}

// RandomImage fills a new image with uniform values in [0, 1).
func RandomImage(width, height, components int, seed uint64) *Image {
	img := NewImage(width, height, components)
	rng := rand.New(rand.NewPCG(seed, seed+1))
	for i := range img.Pix {
		img.Pix[i] = rng.Float32()
	}
	return img
}

// At returns component c of pixel (x, y).
func (m *Image) At(x, y, c int) float32 {
	return m.Pix[(y*m.Width+x)*m.Components+c]
}

// FromImage converts an image to RGBA floats in [0, 1].
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	img := NewImage(b.Dx(), b.Dy(), 4)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(src.At(x, y)).(color.NRGBA64)
			img.Pix[i+0] = float32(c.R) / 0xffff
			img.Pix[i+1] = float32(c.G) / 0xffff
			img.Pix[i+2] = float32(c.B) / 0xffff
			img.Pix[i+3] = float32(c.A) / 0xffff
			i += 4
		}
	}
	return img
}

// ToNRGBA converts the image to 8-bit color. One component is gray, two are
// gray and alpha, three are RGB, four are RGBA.
func (m *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for y := range m.Height {
		for x := range m.Width {
			p := (y*m.Width + x) * m.Components
			var r, g, b, a float32
			switch m.Components {
			case 1:
				r, g, b, a = m.Pix[p], m.Pix[p], m.Pix[p], 1
			case 2:
				r, g, b, a = m.Pix[p], m.Pix[p], m.Pix[p], m.Pix[p+1]
			case 3:
				r, g, b, a = m.Pix[p], m.Pix[p+1], m.Pix[p+2], 1
			default:
				r, g, b, a = m.Pix[p], m.Pix[p+1], m.Pix[p+2], m.Pix[p+3]
			}
			out.SetNRGBA(x, y, color.NRGBA{to8(r), to8(g), to8(b), to8(a)})
		}
	}
	return out
}

func to8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

func checkShape(width, height, components int) {
	if width < 1 || height < 1 {
		panic(fmt.Sprintf("boxblur: invalid size %dx%d", width, height))
	}
	if components < 1 || components > 4 {
		panic(fmt.Sprintf("boxblur: %d components per pixel, want 1 to 4", components))
	}
}
