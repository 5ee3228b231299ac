package pdftest

import (
	"bytes"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func TestBuildIsReadable(t *testing.T) {
	api.DisableConfigDir()
	src := Build(A4("one"), Letter("two"), Page{Width: 842, Height: 595, Rotate: 90, Content: "0 0 m 10 10 l S"})

	count, err := api.PageCount(bytes.NewReader(src), model.NewDefaultConfiguration())
	if err != nil {
		t.Fatalf("Failed to read generated PDF: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 pages, got %d", count)
	}
}

func TestEncrypt(t *testing.T) {
	src := Build(A4("secret"))
	enc, err := Encrypt(src, "user")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if bytes.Equal(src, enc) {
		t.Error("Expected encrypted output to differ from source")
	}
	if !bytes.Contains(enc, []byte("/Encrypt")) {
		t.Error("Expected an /Encrypt entry in the trailer")
	}
}
