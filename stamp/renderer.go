// Package stamp computes stamp geometry and renders stamp overlays as
// PDF content streams in stamp-local coordinates.
package stamp

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/inkstamp/paperless-stamp/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/draw"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/matrix"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Layout constants, relative to the visible page
const (
	AnchorX          = 0.90 // right edge, fraction of page width
	AnchorY          = 0.10 // top inset, fraction of page height
	WidthRatio       = 0.20
	HeightRatio      = 0.40 // stamp height relative to stamp width
	StackingGapRatio = 0.30
	MaxTiltDegrees   = 3.0
	DefaultOpacity   = 0.5
)

// Resource names referenced by overlay content streams
const (
	FontName       = "Courier-Bold"
	FontResource   = "F1"
	GStateResource = "GS0"
)

const (
	borderInset  = 3.5
	borderWidth  = 0.8
	borderPasses = 3
	textPasses   = 2
	jitterScale  = 0.4
	charAdvance  = 0.6  // Courier advance width per point of font size
	capHeight    = 0.57 // Courier-Bold cap height per point of font size
	paddingRatio = 0.08
	bboxMargin   = 2.0
	minMainSize  = 8.0
	minDateSize  = 5.0
)

// ErrInvalidPage is returned for non-positive page dimensions
var ErrInvalidPage = errors.New("invalid page dimensions")

// Overlay is one rendered stamp: its placement on the visible page and
// the drawing instructions in stamp-local space, origin at the stamp center.
type Overlay struct {
	Request   model.StampRequest
	Placement model.StampPlacement
	Content   []byte
	BBox      *types.Rectangle
	Ink       color.SimpleColor
	MainSize  float64
	DateSize  float64

	textHalfHeight float64
}

// Matrix maps stamp-local coordinates onto the visible page
func (o *Overlay) Matrix() matrix.Matrix {
	return matrix.CalcRotateAndTranslateTransformMatrix(o.Placement.TiltDegrees, o.Placement.CenterX, o.Placement.CenterY)
}

// Renderer turns stamp requests into overlays
type Renderer struct {
	defaultOpacity float64
}

// NewRenderer creates a renderer; opacity <= 0 selects DefaultOpacity
func NewRenderer(opacity float64) *Renderer {
	if opacity <= 0 {
		opacity = DefaultOpacity
	}
	return &Renderer{defaultOpacity: opacity}
}

// Render computes the placement for req on a page of the given visible size
// and draws the stamp. Unresolvable colors, empty texts and out of range
// opacities are reported as *model.ConfigError.
func (r *Renderer) Render(req model.StampRequest, pageWidth, pageHeight float64) (*Overlay, error) {
	if pageWidth <= 0 || pageHeight <= 0 {
		return nil, fmt.Errorf("%w: %.2fx%.2f", ErrInvalidPage, pageWidth, pageHeight)
	}

	ink, err := ParseInk(req.StampType, req.Color)
	if err != nil {
		return nil, err
	}

	if req.Opacity == 0 {
		req.Opacity = r.defaultOpacity
	}
	if req.Opacity < 0 || req.Opacity > 1 {
		return nil, &model.ConfigError{StampType: req.StampType, Reason: fmt.Sprintf("opacity %v out of range (0,1]", req.Opacity)}
	}

	text := NormalizeText(req.DisplayText)
	if text == "" {
		return nil, &model.ConfigError{StampType: req.StampType, Reason: "empty display text"}
	}
	req.DisplayText = text

	p := Place(req, pageWidth, pageHeight)
	p.Color = req.Color
	p.Opacity = req.Opacity

	o := &Overlay{
		Request:   req,
		Placement: p,
		Ink:       ink,
	}
	o.Content = o.draw(newJitter(req.DocumentID, req.StampType))
	o.BBox = o.bounds()
	return o, nil
}

// bounds covers the border and the text plus jitter. Text kept at the
// minimum size may overhang the border on very small pages.
func (o *Overlay) bounds() *types.Rectangle {
	halfW := math.Max(o.Placement.Width, TextWidth(o.Request.DisplayText, o.MainSize)) / 2
	if o.DateSize > 0 {
		halfW = math.Max(halfW, TextWidth(o.Request.StampDate, o.DateSize)/2)
	}
	halfH := math.Max(o.Placement.Height/2, o.textHalfHeight)
	return types.NewRectangle(-halfW-bboxMargin, -halfH-bboxMargin, halfW+bboxMargin, halfH+bboxMargin)
}

// Place computes the stamp geometry. All stamps on a page share the same
// width and tilt, so the stacking offset for sequence index i is
// i * box height * (1 + StackingGapRatio), keeping vertical spans disjoint.
func Place(req model.StampRequest, pageWidth, pageHeight float64) model.StampPlacement {
	w := pageWidth * WidthRatio
	h := w * HeightRatio
	tilt := Tilt(req.DocumentID)

	rad := tilt * matrix.DegToRad
	sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
	boxW := w*cos + h*sin
	boxH := h*cos + w*sin

	offset := float64(req.SequenceIndex) * boxH * (1 + StackingGapRatio)
	right := pageWidth * AnchorX
	top := pageHeight * (1 - AnchorY)

	return model.StampPlacement{
		AnchorX:        AnchorX,
		AnchorY:        AnchorY,
		VerticalOffset: offset,
		Width:          w,
		Height:         h,
		BoxWidth:       boxW,
		BoxHeight:      boxH,
		TiltDegrees:    tilt,
		CenterX:        right - boxW/2,
		CenterY:        top - offset - boxH/2,
	}
}

// Tilt maps a document id onto [-3, +3] degrees in steps of 0.01.
func Tilt(documentID int) float64 {
	h := documentHash(documentID)
	return float64(int64(h%601)-300) / 100
}

func documentHash(documentID int) uint64 {
	sum := sha256.Sum256([]byte(strconv.Itoa(documentID)))
	return binary.BigEndian.Uint64(sum[:8])
}

func typeHash(stampType string) uint64 {
	sum := sha256.Sum256([]byte(stampType))
	return binary.BigEndian.Uint64(sum[:8])
}

// ParseInk resolves a configured color. Accepts #RRGGBB, the basic color
// names, or three intensities "r g b".
func ParseInk(stampType, s string) (color.SimpleColor, error) {
	if s == "" {
		return color.SimpleColor{}, &model.ConfigError{StampType: stampType, Reason: "no color configured"}
	}
	c, err := color.ParseColor(s)
	if err != nil {
		return color.SimpleColor{}, &model.ConfigError{StampType: stampType, Reason: fmt.Sprintf("invalid color %q", s), Err: err}
	}
	return c, nil
}

type jitter struct {
	rng *rand.Rand
}

// newJitter seeds a private generator from the document and the stamp type
// so the ink texture repeats exactly for the same pair.
func newJitter(documentID int, stampType string) *jitter {
	return &jitter{rng: rand.New(rand.NewPCG(documentHash(documentID), typeHash(stampType)))}
}

func (j *jitter) next(scale float64) float64 {
	return (j.rng.Float64()*2 - 1) * scale
}

func (o *Overlay) draw(j *jitter) []byte {
	p := o.Placement
	w, h := p.Width, p.Height

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "/%s gs ", GStateResource)
	draw.SetStrokeColor(&buf, o.Ink)
	draw.SetFillColor(&buf, o.Ink)
	draw.SetLineWidth(&buf, borderWidth)

	outer := types.NewRectangle(-w/2, -h/2, w/2, h/2)
	inner := types.NewRectangle(-w/2+borderInset, -h/2+borderInset, w/2-borderInset, h/2-borderInset)
	for i := 0; i < borderPasses; i++ {
		for _, r := range []*types.Rectangle{outer, inner} {
			dx, dy := j.next(jitterScale), j.next(jitterScale)
			draw.DrawRectSimple(&buf, types.NewRectangle(r.LL.X+dx, r.LL.Y+dy, r.UR.X+dx, r.UR.Y+dy))
		}
	}

	req := o.Request
	avail := w - 2*(borderInset+paddingRatio*w)
	if req.HasDate() {
		o.MainSize = math.Max(math.Min(fitWidth(req.DisplayText, avail), 0.42*h), minMainSize)
		o.DateSize = math.Max(math.Min(fitWidth(req.StampDate, avail), 0.20*h), minDateSize)
		gap := 0.12 * h
		block := capHeight*o.MainSize + gap + capHeight*o.DateSize
		o.textHalfHeight = block / 2
		mainY := block/2 - capHeight*o.MainSize
		dateY := -block / 2
		o.text(&buf, j, req.DisplayText, o.MainSize, mainY)
		o.text(&buf, j, req.StampDate, o.DateSize, dateY)
	} else {
		o.MainSize = math.Max(math.Min(fitWidth(req.DisplayText, avail), 0.55*h), minMainSize)
		o.textHalfHeight = capHeight * o.MainSize / 2
		o.text(&buf, j, req.DisplayText, o.MainSize, -capHeight*o.MainSize/2)
	}

	return buf.Bytes()
}

// text draws s centered horizontally with its baseline at y.
func (o *Overlay) text(buf *bytes.Buffer, j *jitter, s string, size, y float64) {
	encoded := EncodeText(s)
	x := -TextWidth(s, size) / 2
	for i := 0; i < textPasses; i++ {
		dx, dy := j.next(jitterScale/2), j.next(jitterScale/2)
		fmt.Fprintf(buf, "BT /%s %.2f Tf %.2f %.2f Td (%s) Tj ET ", FontResource, size, x+dx, y+dy, encoded)
	}
}

func fitWidth(s string, avail float64) float64 {
	n := len([]rune(s))
	if n == 0 || avail <= 0 {
		return 0
	}
	return avail / (float64(n) * charAdvance)
}

// TextWidth returns the advance width of s in Courier at size
func TextWidth(s string, size float64) float64 {
	return float64(len([]rune(s))) * charAdvance * size
}
