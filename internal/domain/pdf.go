package domain

import "bytes"

var pdfSignature = []byte("%PDF-")

// IsPDF reports whether data starts with the PDF file signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfSignature)
}
