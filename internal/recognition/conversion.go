package recognition

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// normalizeToPNG converts a receipt artifact of any supported format
// (PDF, JPEG, PNG, GIF, HEIC/HEIF) into PNG bytes for the vision
// backend. PNG input passes through unchanged.
func normalizeToPNG(artifact []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	switch {
	case mimeType == "application/pdf":
		return pdfToPNG(artifact)
	case mimeType == "image/png" && !isHEIC(artifact, mimeType):
		return artifact, nil
	default:
		return imageToPNG(artifact, mimeType)
	}
}

// pdfToPNG renders the first page of a PDF as PNG. Receipts are almost
// always single page.
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	return encodePNG(img)
}

// imageToPNG decodes a standard image or HEIC/HEIF photo and re-encodes
// it as PNG.
func imageToPNG(artifact []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	if isHEIC(artifact, mimeType) {
		// Phone photos; not handled by the standard image package.
		img, err = heic.Decode(bytes.NewReader(artifact))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(artifact))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC reports whether the artifact is a HEIC/HEIF photo, by MIME
// type or by the ftyp box brand in the file header.
func isHEIC(data []byte, mimeType string) bool {
	if strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif") {
		return true
	}
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}
