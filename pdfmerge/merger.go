// Package pdfmerge composites stamp overlays onto page 1 of a PDF as an
// incremental update, leaving the original bytes untouched.
package pdfmerge

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/inkstamp/paperless-stamp/stamp"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/matrix"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const formNamePrefix = "Stamp"

var disableConfigDir sync.Once

// PageGeometry describes page 1 as a viewer shows it
type PageGeometry struct {
	Width     float64 // visible width, after rotation
	Height    float64 // visible height, after rotation
	Rotate    int
	Box       *types.Rectangle // crop box (or media box) in user space
	PageCount int
}

// Merger reads PDFs with pdfcpu and appends stamp forms to page 1
type Merger struct{}

// NewMerger creates a Merger. pdfcpu's on-disk config dir is disabled.
func NewMerger() *Merger {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Merger{}
}

func (m *Merger) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	conf.Optimize = false
	return conf
}

// Inspect returns the visible geometry of page 1
func (m *Merger) Inspect(src []byte) (*PageGeometry, error) {
	ctx, _, err := m.open(src)
	if err != nil {
		return nil, err
	}
	_, _, inh, err := ctx.PageDict(1, false)
	if err != nil {
		return nil, &UnsupportedDocumentError{Reason: "cannot resolve page 1", Err: err}
	}
	return geometry(inh, ctx.PageCount)
}

// Merge draws overlays on page 1 in sequence order and returns the source
// bytes followed by an incremental update. Other pages, and the existing
// page 1 content streams, are not rewritten.
func (m *Merger) Merge(src []byte, overlays []*stamp.Overlay) (out []byte, err error) {
	if len(overlays) == 0 {
		return nil, ErrNoOverlays
	}

	ctx, base, err := m.open(src)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("failed to write increment: %v", r)
		}
	}()

	pageDict, pageRef, inh, err := ctx.PageDict(1, false)
	if err != nil {
		return nil, &UnsupportedDocumentError{Reason: "cannot resolve page 1", Err: err}
	}
	if pageRef == nil {
		return nil, &UnsupportedDocumentError{Reason: "page 1 is not an indirect object"}
	}

	g, err := geometry(inh, ctx.PageCount)
	if err != nil {
		return nil, err
	}
	toUser := VisibleToUser(g.Rotate, g.Box)

	ctx.Write.Increment = true
	ctx.Write.Offset = ctx.Read.FileSize

	resources, xobjects, err := m.pageResources(ctx, inh.Resources)
	if err != nil {
		return nil, err
	}

	ordered := slices.Clone(overlays)
	slices.SortStableFunc(ordered, func(a, b *stamp.Overlay) int {
		return cmp.Compare(a.Request.SequenceIndex, b.Request.SequenceIndex)
	})

	var draws strings.Builder
	for i, o := range ordered {
		ref, err := m.addForm(ctx, o, toUser)
		if err != nil {
			return nil, err
		}
		name := uniqueName(xobjects, i)
		xobjects.Insert(name, *ref)
		fmt.Fprintf(&draws, "q /%s Do Q\n", name)
	}
	resources.Update("XObject", xobjects)
	pageDict.Update("Resources", resources)

	contents, err := m.pageContents(ctx, pageDict, draws.String())
	if err != nil {
		return nil, err
	}
	pageDict.Update("Contents", contents)

	if entry, ok := ctx.FindTableEntryForIndRef(pageRef); ok {
		entry.Object = pageDict
	}
	ctx.Write.IncrementWithObjNr(pageRef.ObjectNumber.Value())

	var buf bytes.Buffer
	buf.Grow(len(base) + 4096)
	buf.Write(base)
	if err := api.WriteIncrement(ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write increment: %w", err)
	}
	return buf.Bytes(), nil
}

// open parses src. Sources that do not end in an EOL get one appended so
// the increment starts on a fresh line; the returned bytes are the base the
// increment must be appended to.
func (m *Merger) open(src []byte) (ctx *model.Context, base []byte, err error) {
	if len(src) == 0 {
		return nil, nil, &UnsupportedDocumentError{Reason: "empty file"}
	}

	base = src
	if last := src[len(src)-1]; last != '\n' && last != '\r' {
		base = append(slices.Clip(src), '\n')
	}

	defer func() {
		if r := recover(); r != nil {
			ctx, base, err = nil, nil, &UnsupportedDocumentError{Reason: "unparsable PDF", Err: fmt.Errorf("%v", r)}
		}
	}()

	ctx, err = api.ReadContext(bytes.NewReader(base), m.configuration())
	if err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return nil, nil, &UnsupportedDocumentError{Reason: "password protected", Err: err}
		}
		return nil, nil, &UnsupportedDocumentError{Reason: "unparsable PDF", Err: err}
	}
	if ctx.Encrypt != nil {
		return nil, nil, &UnsupportedDocumentError{Reason: "encrypted"}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, nil, &UnsupportedDocumentError{Reason: "cannot count pages", Err: err}
	}
	if ctx.PageCount < 1 {
		return nil, nil, &UnsupportedDocumentError{Reason: "document has no pages"}
	}
	return ctx, base, nil
}

func geometry(inh *model.InheritedPageAttrs, pageCount int) (*PageGeometry, error) {
	box := inh.CropBox
	if box == nil {
		box = inh.MediaBox
	}
	if box == nil || box.Width() <= 0 || box.Height() <= 0 {
		return nil, &UnsupportedDocumentError{Reason: "page 1 has no usable MediaBox"}
	}

	rotate := ((inh.Rotate % 360) + 360) % 360
	if rotate%90 != 0 {
		rotate = 0
	}

	g := &PageGeometry{Width: box.Width(), Height: box.Height(), Rotate: rotate, Box: box, PageCount: pageCount}
	if rotate == 90 || rotate == 270 {
		g.Width, g.Height = g.Height, g.Width
	}
	return g, nil
}

// VisibleToUser maps coordinates on the page as displayed (rotation applied,
// origin at the lower left of the crop box) back into PDF user space.
func VisibleToUser(rotate int, box *types.Rectangle) matrix.Matrix {
	w, h := box.Width(), box.Height()
	m := matrix.IdentMatrix
	switch rotate {
	case 90:
		m = matrix.Matrix{{0, 1, 0}, {-1, 0, 0}, {w, 0, 1}}
	case 180:
		m = matrix.Matrix{{-1, 0, 0}, {0, -1, 0}, {w, h, 1}}
	case 270:
		m = matrix.Matrix{{0, -1, 0}, {1, 0, 0}, {0, h, 1}}
	}
	m[2][0] += box.LL.X
	m[2][1] += box.LL.Y
	return m
}

// pageResources copies the effective page resources so shared resource
// dictionaries of other pages are never modified.
func (m *Merger) pageResources(ctx *model.Context, inherited types.Dict) (types.Dict, types.Dict, error) {
	resources := types.NewDict()
	if inherited != nil {
		resources = inherited.Clone().(types.Dict)
	}

	xobjects := types.NewDict()
	if o, found := resources.Find("XObject"); found && o != nil {
		d, err := ctx.DereferenceDict(o)
		if err != nil {
			return nil, nil, &UnsupportedDocumentError{Reason: "invalid XObject resources", Err: err}
		}
		if d != nil {
			xobjects = d.Clone().(types.Dict)
		}
	}
	return resources, xobjects, nil
}

// pageContents wraps the existing content streams in q/Q and appends the
// stamp drawing stream.
func (m *Merger) pageContents(ctx *model.Context, pageDict types.Dict, draws string) (types.Array, error) {
	var existing types.Array
	if o, found := pageDict.Find("Contents"); found && o != nil {
		switch obj := o.(type) {
		case types.IndirectRef:
			deref, err := ctx.Dereference(obj)
			if err != nil {
				return nil, &UnsupportedDocumentError{Reason: "invalid page contents", Err: err}
			}
			if arr, ok := deref.(types.Array); ok {
				existing = slices.Clone(arr)
			} else {
				existing = types.Array{obj}
			}
		case types.Array:
			existing = slices.Clone(obj)
		}
	}

	if len(existing) == 0 {
		ref, err := m.addStream(ctx, []byte(draws))
		if err != nil {
			return nil, err
		}
		return types.Array{*ref}, nil
	}

	open, err := m.addStream(ctx, []byte("q\n"))
	if err != nil {
		return nil, err
	}
	closing, err := m.addStream(ctx, []byte("Q\n"+draws))
	if err != nil {
		return nil, err
	}

	contents := types.Array{*open}
	contents = append(contents, existing...)
	contents = append(contents, *closing)
	return contents, nil
}

func (m *Merger) addStream(ctx *model.Context, content []byte) (*types.IndirectRef, error) {
	sd, err := ctx.NewStreamDictForBuf(content)
	if err != nil {
		return nil, fmt.Errorf("failed to create content stream: %w", err)
	}
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode content stream: %w", err)
	}
	return m.register(ctx, *sd)
}

func (m *Merger) addForm(ctx *model.Context, o *stamp.Overlay, toUser matrix.Matrix) (*types.IndirectRef, error) {
	sd, err := ctx.NewStreamDictForBuf(o.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to create stamp form: %w", err)
	}

	mtx := o.Matrix().Multiply(toUser)
	sd.InsertName("Type", "XObject")
	sd.InsertName("Subtype", "Form")
	sd.Insert("BBox", o.BBox.Array())
	sd.Insert("Matrix", types.NewNumberArray(mtx[0][0], mtx[0][1], mtx[1][0], mtx[1][1], mtx[2][0], mtx[2][1]))
	sd.Insert("Resources", formResources(o.Placement.Opacity))

	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode stamp form: %w", err)
	}
	return m.register(ctx, *sd)
}

func (m *Merger) register(ctx *model.Context, obj types.Object) (*types.IndirectRef, error) {
	ref, err := ctx.IndRefForNewObject(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to register object: %w", err)
	}
	ctx.Write.IncrementWithObjNr(ref.ObjectNumber.Value())
	return ref, nil
}

// formResources holds only direct objects so the form is self-contained.
func formResources(opacity float64) types.Dict {
	font := types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name(stamp.FontName),
		"Encoding": types.Name("WinAnsiEncoding"),
	}
	gs := types.Dict{
		"Type": types.Name("ExtGState"),
		"CA":   types.Float(opacity),
		"ca":   types.Float(opacity),
	}
	return types.Dict{
		"Font":      types.Dict{stamp.FontResource: font},
		"ExtGState": types.Dict{stamp.GStateResource: gs},
		"ProcSet":   types.NewNameArray("PDF", "Text"),
	}
}

func uniqueName(xobjects types.Dict, i int) string {
	name := fmt.Sprintf("%s%d", formNamePrefix, i)
	for n := 0; ; n++ {
		if _, taken := xobjects[name]; !taken {
			return name
		}
		name = fmt.Sprintf("%s%d_%d", formNamePrefix, i, n)
	}
}
