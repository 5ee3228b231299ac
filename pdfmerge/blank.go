package pdfmerge

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Blank writes a single empty page of the given size in points
func (m *Merger) Blank(width, height float64) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid page size %.2fx%.2f", width, height)
	}

	xRefTable, err := pdfcpu.CreateXRefTableWithRootDict()
	if err != nil {
		return nil, fmt.Errorf("failed to create xref table: %w", err)
	}
	root, err := xRefTable.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	box := types.RectForDim(width, height)
	if err := pdfcpu.AddPageTreeWithSamplePage(xRefTable, root, model.NewPage(box, box)); err != nil {
		return nil, fmt.Errorf("failed to add page: %w", err)
	}

	var buf bytes.Buffer
	if err := api.WriteContext(pdfcpu.CreateContext(xRefTable, m.configuration()), &buf); err != nil {
		return nil, fmt.Errorf("failed to write blank page: %w", err)
	}
	return buf.Bytes(), nil
}
