package render

import (
	"image/color"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/palette/moreland"
)

// Colour map names accepted by NewColorMap.
const (
	CoolWarm = "coolwarm"
	RdYlBu   = "RdYlBu"
	RdYlBuR  = "RdYlBu_r"
)

// NewColorMap returns the named diverging colour map. A "_r" suffix reverses
// the map.
func NewColorMap(name string) (palette.ColorMap, error) {
	switch name {
	case CoolWarm:
		return moreland.SmoothBlueRed(), nil
	case CoolWarm + "_r":
		return palette.Reverse(moreland.SmoothBlueRed()), nil
	case RdYlBu, RdYlBuR:
		p, err := brewer.GetPalette(brewer.TypeDiverging, RdYlBu, 11)
		if err != nil {
			return nil, eris.Wrap(err, "render: brewer palette")
		}
		cm := newSegmented(p.Colors())
		if name == RdYlBuR {
			return palette.Reverse(cm), nil
		}
		return cm, nil
	default:
		return nil, eris.Errorf("render: unknown colour map %q", name)
	}
}

// segmented interpolates linearly between evenly spaced control colours.
type segmented struct {
	controls []color.NRGBA
	min, max float64
	alpha    float64
}

func newSegmented(cs []color.Color) *segmented {
	s := &segmented{max: 1, alpha: 1}
	for _, c := range cs {
		s.controls = append(s.controls, color.NRGBAModel.Convert(c).(color.NRGBA))
	}
	return s
}

func (s *segmented) At(v float64) (color.Color, error) {
	switch {
	case math.IsNaN(v):
		return nil, palette.ErrNaN
	case v < s.min:
		return nil, palette.ErrUnderflow
	case v > s.max:
		return nil, palette.ErrOverflow
	}

	last := len(s.controls) - 1
	t := 0.0
	if s.max > s.min {
		t = (v - s.min) / (s.max - s.min) * float64(last)
	}
	i := min(int(t), last-1)
	f := t - float64(i)
	a, b := s.controls[i], s.controls[i+1]
	return color.NRGBA{
		R: lerp(a.R, b.R, f),
		G: lerp(a.G, b.G, f),
		B: lerp(a.B, b.B, f),
		A: uint8(math.Round(255 * s.alpha)),
	}, nil
}

func (s *segmented) Max() float64 { return s.max }
func (s *segmented) SetMax(v float64) { s.max = v }
func (s *segmented) Min() float64 { return s.min }
func (s *segmented) SetMin(v float64) { s.min = v }
func (s *segmented) Alpha() float64 { return s.alpha }
func (s *segmented) SetAlpha(alpha float64) { s.alpha = alpha }

// Palette samples n evenly spaced colours across the map.
func (s *segmented) Palette(n int) palette.Palette {
	out := make(swatch, n)
	for i := range n {
		v := s.min
		if n > 1 {
			v += (s.max - s.min) * float64(i) / float64(n-1)
		}
		out[i], _ = s.At(v)
	}
	return out
}

type swatch []color.Color

func (s swatch) Colors() []color.Color { return s }

func lerp(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}
