package annotate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"inspection-service/internal/domain/inspection"
)

var ErrImageDecode = errors.New("image decode failed")

var (
	boxColor  = color.NRGBA{R: 255, A: 255}
	textColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	boxThickness = 4
	tagPadding   = 5
	jpegQuality  = 90
)

// Annotator draws detection boxes and confidence tags onto images.
type Annotator struct {
	face font.Face
}

func New() *Annotator {
	return &Annotator{face: basicfont.Face7x13}
}

// Annotate returns a new image with every detection outlined. The source is
// never modified and an empty detection list yields a pixel-identical copy.
func (a *Annotator) Annotate(src image.Image, detections []inspection.Detection) *image.NRGBA {
	dst := imaging.Clone(src)
	for _, d := range detections {
		rect := d.Box.Rect()
		a.drawBox(dst, rect)
		a.drawTag(dst, rect, Caption(d))
	}
	return dst
}

// Frame decodes an encoded image, annotates it and re-encodes it as JPEG.
func (a *Annotator) Frame(data []byte, detections []inspection.Detection) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Encode(a.Annotate(img, detections))
}

// Caption is the tag text shown above a detection box.
func Caption(d inspection.Detection) string {
	return fmt.Sprintf("%s %.1f%%", d.Label().Display(), d.ConfidencePercent())
}

func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrImageDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, nil
}

func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Annotator) drawBox(dst draw.Image, r image.Rectangle) {
	half := boxThickness / 2
	fill(dst, image.Rect(r.Min.X-half, r.Min.Y-half, r.Max.X+half, r.Min.Y+half), boxColor)
	fill(dst, image.Rect(r.Min.X-half, r.Max.Y-half, r.Max.X+half, r.Max.Y+half), boxColor)
	fill(dst, image.Rect(r.Min.X-half, r.Min.Y-half, r.Min.X+half, r.Max.Y+half), boxColor)
	fill(dst, image.Rect(r.Max.X-half, r.Min.Y-half, r.Max.X+half, r.Max.Y+half), boxColor)
}

func (a *Annotator) drawTag(dst draw.Image, box image.Rectangle, text string) {
	metrics := a.face.Metrics()
	textWidth := font.MeasureString(a.face, text).Ceil()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()

	tag := image.Rect(
		box.Min.X,
		box.Min.Y-textHeight-2*tagPadding,
		box.Min.X+textWidth+2*tagPadding,
		box.Min.Y,
	)
	fill(dst, tag, boxColor)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor),
		Face: a.face,
		Dot:  fixed.P(tag.Min.X+tagPadding, tag.Max.Y-tagPadding-metrics.Descent.Ceil()),
	}
	d.DrawString(text)
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}
