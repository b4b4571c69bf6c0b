package gauge

import (
	"errors"
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

var (
	// ErrNoDialDetected is returned when no dial outline can be found.
	ErrNoDialDetected = errors.New("No circles detected in the image.") //nolint:staticcheck // returned verbatim to /upload callers
	// ErrNoNeedleDetected is returned when the dial is found but no ray
	// from its centre is darker than the background.
	ErrNoNeedleDetected = errors.New("no needle detected on the dial")
	// ErrImageTooLarge is returned before decoding when the image header
	// declares more pixels than MaxPixels.
	ErrImageTooLarge = errors.New("image has too many pixels")
)

// Analyzer locates the dial and needle of an analog gauge.
//
// Angles are measured in degrees clockwise from the 6 o'clock position, so
// 90 points left, 180 up and 270 right. The scale runs clockwise from
// ScaleStartDeg (the min mark) to ScaleEndDeg (the max mark).
type Analyzer struct {
	ScaleStartDeg float64
	ScaleEndDeg   float64
	// MaxDimension bounds the longer image side; larger inputs are downscaled first.
	MaxDimension int
	// MaxPixels bounds width*height of an image Read will decode. Zero disables the check.
	MaxPixels int64
	// DarkThreshold is the gray level below which a pixel counts as ink.
	DarkThreshold uint8
	// MinDialRadius is the smallest radius, in pixels after downscaling, accepted as a dial.
	MinDialRadius int
}

// NewAnalyzer returns an analyzer for the common 270 degree dial whose scale
// starts at 45 and ends at 315.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		ScaleStartDeg: 45,
		ScaleEndDeg:   315,
		MaxDimension:  800,
		MaxPixels:     40_000_000,
		DarkThreshold: 100,
		MinDialRadius: 10,
	}
}

// Detection describes where the dial and needle were found.
type Detection struct {
	CenterX    float64 `json:"centerX"`
	CenterY    float64 `json:"centerY"`
	Radius     float64 `json:"radius"`
	AngleDeg   float64 `json:"angleDeg"`
	Confidence float64 `json:"confidence"`
}

// Fraction returns how far along the analyzer's scale the needle points, in
// [0, 1]. A needle inside the dead zone between the end and start marks is
// snapped to the nearer end.
func (d *Detection) Fraction(a *Analyzer) float64 {
	sweep := a.ScaleEndDeg - a.ScaleStartDeg
	if sweep <= 0 {
		return 0
	}

	rel := math.Mod(d.AngleDeg-a.ScaleStartDeg, 360)
	if rel < 0 {
		rel += 360
	}
	if rel <= sweep {
		return rel / sweep
	}

	// Dead zone: closer to the end mark, or wrapped around to the start.
	if rel-sweep < (360-sweep)/2 {
		return 1
	}
	return 0
}

// Analyze finds the dial and the needle angle in img.
func (a *Analyzer) Analyze(img image.Image) (*Detection, error) {
	gray := toGrayscale(a.downscale(img))

	cx, cy, r, ok := a.locateDial(gray)
	if !ok {
		return nil, ErrNoDialDetected
	}

	angle, confidence, ok := a.sweepNeedle(gray, cx, cy, r)
	if !ok {
		return nil, ErrNoNeedleDetected
	}

	return &Detection{
		CenterX:    cx,
		CenterY:    cy,
		Radius:     r,
		AngleDeg:   angle,
		Confidence: confidence,
	}, nil
}

// downscale shrinks img so that its longer side is at most MaxDimension.
func (a *Analyzer) downscale(img image.Image) image.Image {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if a.MaxDimension <= 0 || longest <= a.MaxDimension {
		return img
	}

	scale := float64(a.MaxDimension) / float64(longest)
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// toGrayscale converts an image to grayscale
func toGrayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}

	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// locateDial takes the bounding box of all ink as the dial. The dial outline
// is the outermost ink on a gauge face, so the box centre is the pivot.
func (a *Analyzer) locateDial(gray *image.Gray) (cx, cy, r float64, ok bool) {
	bounds := gray.Bounds()
	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X-1, bounds.Min.Y-1

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y >= a.DarkThreshold {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}

	if maxX < minX || maxY < minY {
		return 0, 0, 0, false
	}

	cx = float64(minX+maxX) / 2
	cy = float64(minY+maxY) / 2
	r = float64(min(maxX-minX, maxY-minY)) / 2
	if r < float64(a.MinDialRadius) {
		return 0, 0, 0, false
	}
	return cx, cy, r, true
}

const (
	sweepStepDeg  = 1
	innerRadius   = 0.2
	outerRadius   = 0.8
	refineSpanDeg = 2
)

// sweepNeedle casts a ray from the centre every degree and scores it by the
// mean darkness between 20% and 80% of the radius. That band skips the pivot
// cap and the tick marks on the rim. The best ray is refined by a weighted
// average of its neighbours.
func (a *Analyzer) sweepNeedle(gray *image.Gray, cx, cy, r float64) (angle, confidence float64, ok bool) {
	const bins = 360 / sweepStepDeg
	scores := make([]float64, bins)

	bounds := gray.Bounds()
	total := 0.0
	best := 0
	for i := 0; i < bins; i++ {
		theta := float64(i*sweepStepDeg) * math.Pi / 180
		dx, dy := -math.Sin(theta), math.Cos(theta)

		sum, n := 0.0, 0
		for t := innerRadius * r; t <= outerRadius*r; t++ {
			x := int(math.Round(cx + t*dx))
			y := int(math.Round(cy + t*dy))
			if !(image.Point{X: x, Y: y}).In(bounds) {
				continue
			}
			sum += float64(255 - gray.GrayAt(x, y).Y)
			n++
		}
		if n > 0 {
			scores[i] = sum / float64(n)
		}
		total += scores[i]
		if scores[i] > scores[best] {
			best = i
		}
	}

	peak := scores[best]
	if peak == 0 {
		return 0, 0, false
	}

	var weighted, weights float64
	for off := -refineSpanDeg; off <= refineSpanDeg; off++ {
		s := scores[(best+off+bins)%bins]
		if s < peak/2 {
			continue
		}
		weighted += float64(best*sweepStepDeg+off*sweepStepDeg) * s
		weights += s
	}
	angle = math.Mod(weighted/weights+360, 360)

	mean := total / bins
	confidence = math.Min(1, math.Max(0, (peak-mean)/255))
	return angle, confidence, true
}
