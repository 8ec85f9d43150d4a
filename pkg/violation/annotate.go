package violation

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/imaging"
)

// Annotation colours.
var (
	colorViolation = color.NRGBA{R: 255, A: 255}
	colorOK        = color.NRGBA{G: 255, A: 255}
	colorPlate     = color.NRGBA{B: 255, A: 255}
	colorVehicle   = color.NRGBA{G: 255, B: 255, A: 255}
	colorText      = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	colorBanner    = color.NRGBA{A: 255}
)

// Annotator draws detection boxes and a camera banner onto evidence images.
type Annotator struct {
	OutputDir string
}

// NewAnnotator writes annotated images into dir.
func NewAnnotator(dir string) *Annotator {
	return &Annotator{OutputDir: dir}
}

// Annotate loads the image at ev.EvidencePath, draws the person, helmet,
// plate and vehicle boxes found in s and saves the result as
// <name>_annotated_<timestamp><ext> in the output directory. It returns the
// path of the new file.
func (a *Annotator) Annotate(ev Event, s Summary, flagged bool, at time.Time) (string, error) {
	data, err := os.ReadFile(ev.EvidencePath)
	if err != nil {
		return "", fmt.Errorf("failed to read evidence: %w", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return "", err
	}

	if s.PersonDetected {
		c, label := colorOK, fmt.Sprintf("Person: %.2f", s.PersonConfidence)
		if flagged {
			c = colorViolation
			label += " - NO HELMET!"
		}
		strokeBox(img, s.PersonBox, c, 3)
		drawLabel(img, s.PersonBox.X1, s.PersonBox.Y1-10, label, c)
	}
	if s.HelmetDetected {
		strokeBox(img, s.HelmetBox, colorOK, 2)
		drawLabel(img, s.HelmetBox.X1, s.HelmetBox.Y1-10, fmt.Sprintf("Helmet: %.2f", s.HelmetConfidence), colorOK)
	}
	if !ev.PlateBox.IsZero() {
		strokeBox(img, ev.PlateBox, colorPlate, 2)
		drawLabel(img, ev.PlateBox.X1, ev.PlateBox.Y2+25, ev.PlateNumber, colorPlate)
	}
	if s.VehicleDetected {
		strokeBox(img, s.VehicleBox, colorVehicle, 2)
		drawLabel(img, s.VehicleBox.X1, s.VehicleBox.Y1-10, s.VehicleType, colorVehicle)
	}

	draw.Draw(img, image.Rect(10, 10, 500, 80).Intersect(img.Bounds()), image.NewUniform(colorBanner), image.Point{}, draw.Src)
	drawLabel(img, 15, 30, "Camera: "+ev.CameraID, colorText)
	drawLabel(img, 15, 50, "Time: "+at.Format("2006-01-02 15:04:05"), colorText)
	if flagged {
		drawLabel(img, 15, 70, "VIOLATION DETECTED!", colorViolation)
	}

	if err := os.MkdirAll(a.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	base := filepath.Base(ev.EvidencePath)
	ext := filepath.Ext(base)
	out := filepath.Join(a.OutputDir, fmt.Sprintf("%s_annotated_%s%s", strings.TrimSuffix(base, ext), at.Format("20060102_150405"), ext))

	if err := writeImage(out, img, ext); err != nil {
		return "", err
	}
	return out, nil
}

func writeImage(path string, img image.Image, ext string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create annotated image: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(ext) {
	case ".png":
		err = png.Encode(f, img)
	default:
		var data []byte
		data, err = imaging.EncodeJPEG(img, 90)
		if err == nil {
			_, err = f.Write(data)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to write annotated image: %w", err)
	}
	return f.Close()
}

// strokeBox draws the outline of b, thickness pixels wide, growing inwards.
func strokeBox(img draw.Image, b Box, c color.Color, thickness int) {
	src := image.NewUniform(c)
	r := image.Rect(b.X1, b.Y1, b.X2, b.Y2)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text with its baseline at (x, y).
func drawLabel(img draw.Image, x, y int, text string, c color.Color) {
	if text == "" {
		return
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
