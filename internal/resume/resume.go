// Package resume extracts plain text from PDF or text resumes so they can be
// used as the bio of a match query.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxChars caps the extracted text. Longer resumes are cut at a word boundary.
const MaxChars = 4000

// ErrNoText is returned for resumes without extractable text.
var ErrNoText = errors.New("resume contains no extractable text")

var pdfMagic = []byte("%PDF-")

// ExtractText reads the resume at path and returns its text with whitespace
// collapsed to single spaces. Files named *.pdf or starting with the PDF
// header are parsed as PDF; anything else is read as UTF-8 text.
func ExtractText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening resume: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat resume: %w", err)
	}

	head := make([]byte, len(pdfMagic))
	n, _ := f.ReadAt(head, 0)
	if strings.EqualFold(filepath.Ext(path), ".pdf") || bytes.Equal(head[:n], pdfMagic) {
		return Extract(f, st.Size())
	}
	return extractPlain(f)
}

func extractPlain(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading resume: %w", err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("reading resume: not valid UTF-8 text")
	}
	text := Clean(string(b))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Extract reads a PDF of the given size from r.
func Extract(r io.ReaderAt, size int64) (text string, err error) {
	// The PDF parser panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("parsing resume: malformed PDF: %v", p)
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("parsing resume: %w", err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting resume text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading resume text: %w", err)
	}

	text = Clean(buf.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Clean collapses runs of whitespace and truncates to MaxChars.
func Clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= MaxChars {
		return s
	}
	cut := s[:MaxChars]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.ToValidUTF8(cut, "")
}
