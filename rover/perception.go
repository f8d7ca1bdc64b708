package rover

import (
	"fmt"
	"image"
)

// Perception backends.
const (
	PerceptionBackendNative = "native"
	PerceptionBackendGoCV   = "gocv"
)

// PerceptionConfig describes the target color band (8-bit HSV, hue in 0..179)
// and the mask cleanup applied before region extraction.
type PerceptionConfig struct {
	Backend          string  `mapstructure:"backend"`
	HueMin           int     `mapstructure:"hue_min"`
	HueMax           int     `mapstructure:"hue_max"`
	SatMin           int     `mapstructure:"sat_min"`
	SatMax           int     `mapstructure:"sat_max"`
	ValMin           int     `mapstructure:"val_min"`
	ValMax           int     `mapstructure:"val_max"`
	MinRadius        float64 `mapstructure:"min_radius"`
	ErodeIterations  int     `mapstructure:"erode_iterations"`
	DilateIterations int     `mapstructure:"dilate_iterations"`
}

func (c PerceptionConfig) validate() error {
	switch c.Backend {
	case PerceptionBackendNative, PerceptionBackendGoCV:
	default:
		return invalid("perception.backend %q is not one of native|gocv", c.Backend)
	}
	if c.HueMin < 0 || c.HueMax > 179 || c.HueMin > c.HueMax {
		return invalid("perception hue band must satisfy 0 <= hue_min <= hue_max <= 179")
	}
	if c.SatMin < 0 || c.SatMax > 255 || c.SatMin > c.SatMax {
		return invalid("perception saturation band must satisfy 0 <= sat_min <= sat_max <= 255")
	}
	if c.ValMin < 0 || c.ValMax > 255 || c.ValMin > c.ValMax {
		return invalid("perception value band must satisfy 0 <= val_min <= val_max <= 255")
	}
	if c.MinRadius < 0 {
		return invalid("perception.min_radius must be >= 0")
	}
	if c.ErodeIterations < 0 || c.DilateIterations < 0 {
		return invalid("perception erode/dilate iterations must be >= 0")
	}
	return nil
}

// newGoCVPerceiver is set by the gocv build.
var newGoCVPerceiver func(PerceptionConfig) (Perceiver, error)

// NewPerceiver builds the configured perception backend.
func NewPerceiver(cfg PerceptionConfig) (Perceiver, error) {
	switch cfg.Backend {
	case PerceptionBackendNative, "":
		return NewColorBlobDetector(cfg), nil
	case PerceptionBackendGoCV:
		if newGoCVPerceiver == nil {
			return nil, fmt.Errorf("perception backend %q: binary built without the gocv tag", cfg.Backend)
		}
		return newGoCVPerceiver(cfg)
	default:
		return nil, fmt.Errorf("unknown perception backend %q", cfg.Backend)
	}
}

// ColorBlobDetector finds the largest blob of the configured color.
type ColorBlobDetector struct {
	cfg PerceptionConfig
}

// NewColorBlobDetector constructs a detector for the given color band.
func NewColorBlobDetector(cfg PerceptionConfig) *ColorBlobDetector {
	return &ColorBlobDetector{cfg: cfg}
}

// Perceive returns the largest region whose enclosing circle exceeds the
// noise floor. On equal radii the region met first in raster order wins.
func (d *ColorBlobDetector) Perceive(frame image.Image) TargetEstimate {
	m := d.Mask(frame)
	for i := 0; i < d.cfg.ErodeIterations; i++ {
		m = m.erode()
	}
	for i := 0; i < d.cfg.DilateIterations; i++ {
		m = m.dilate()
	}

	var best TargetEstimate
	for _, boundary := range m.externalBoundaries() {
		c := minEnclosingCircle(boundary)
		if c.R > best.Radius && c.R > d.cfg.MinRadius {
			best = TargetEstimate{Found: true, CenterX: c.X, Radius: c.R}
		}
	}
	return best
}

// Mask thresholds frame in HSV space against the configured band.
func (d *ColorBlobDetector) Mask(frame image.Image) *Mask {
	b := frame.Bounds()
	m := newMask(b.Dx(), b.Dy())
	inBand := func(r, g, bl uint8) bool {
		h, s, v := rgbToHSV(r, g, bl)
		return int(h) >= d.cfg.HueMin && int(h) <= d.cfg.HueMax &&
			int(s) >= d.cfg.SatMin && int(s) <= d.cfg.SatMax &&
			int(v) >= d.cfg.ValMin && int(v) <= d.cfg.ValMax
	}

	switch img := frame.(type) {
	case *image.RGBA:
		for y := 0; y < m.H; y++ {
			row := img.Pix[(y+b.Min.Y-img.Rect.Min.Y)*img.Stride+(b.Min.X-img.Rect.Min.X)*4:]
			for x := 0; x < m.W; x++ {
				if inBand(row[x*4], row[x*4+1], row[x*4+2]) {
					m.Pix[y*m.W+x] = 1
				}
			}
		}
	case *image.NRGBA:
		for y := 0; y < m.H; y++ {
			row := img.Pix[(y+b.Min.Y-img.Rect.Min.Y)*img.Stride+(b.Min.X-img.Rect.Min.X)*4:]
			for x := 0; x < m.W; x++ {
				if inBand(row[x*4], row[x*4+1], row[x*4+2]) {
					m.Pix[y*m.W+x] = 1
				}
			}
		}
	default:
		for y := 0; y < m.H; y++ {
			for x := 0; x < m.W; x++ {
				r, g, bl, _ := frame.At(x+b.Min.X, y+b.Min.Y).RGBA()
				if inBand(uint8(r>>8), uint8(g>>8), uint8(bl>>8)) {
					m.Pix[y*m.W+x] = 1
				}
			}
		}
	}
	return m
}

// rgbToHSV converts to 8-bit HSV with hue halved into 0..179.
func rgbToHSV(r, g, b uint8) (h, s, v uint8) {
	ri, gi, bi := int(r), int(g), int(b)
	vmax := max(ri, gi, bi)
	vmin := min(ri, gi, bi)
	diff := vmax - vmin

	if vmax > 0 {
		s = uint8((diff*255 + vmax/2) / vmax)
	}
	if diff == 0 {
		return 0, s, uint8(vmax)
	}

	var hue float64
	switch vmax {
	case ri:
		hue = 60 * float64(gi-bi) / float64(diff)
	case gi:
		hue = 120 + 60*float64(bi-ri)/float64(diff)
	default:
		hue = 240 + 60*float64(ri-gi)/float64(diff)
	}
	if hue < 0 {
		hue += 360
	}
	hh := int(hue/2 + 0.5)
	if hh >= 180 {
		hh -= 180
	}
	return uint8(hh), s, uint8(vmax)
}
