package scanning

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// DefaultOCRTimeout bounds text recognition of one receipt.
const DefaultOCRTimeout = 10 * time.Second

// TextLine is one recognized line and where it sits on the page.
type TextLine struct {
	Text string
	Box  image.Rectangle
}

// Recognizer turns a PNG into text lines.
type Recognizer interface {
	Recognize(png []byte, languages []string) ([]TextLine, error)
}

// TesseractRecognizer recognizes text with the local Tesseract install.
type TesseractRecognizer struct{}

// Recognize implements Recognizer. A fresh client is used per call since
// gosseract clients are not safe for concurrent use.
func (TesseractRecognizer) Recognize(png []byte, languages []string) ([]TextLine, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return nil, fmt.Errorf("setting language: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return nil, fmt.Errorf("setting image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognizing lines: %w", err)
	}

	lines := make([]TextLine, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, TextLine{Text: b.Word, Box: b.Box})
	}
	return lines, nil
}

// OCR is the text recognition strategy. Its lines are parsed into items
// by the lineitem package.
type OCR struct {
	recognizer Recognizer
	timeout    time.Duration
}

// NewOCR creates an OCR scanner. A zero timeout uses DefaultOCRTimeout.
func NewOCR(recognizer Recognizer, timeout time.Duration) *OCR {
	if recognizer == nil {
		recognizer = TesseractRecognizer{}
	}
	if timeout <= 0 {
		timeout = DefaultOCRTimeout
	}
	return &OCR{recognizer: recognizer, timeout: timeout}
}

// Strategy implements Scanner.
func (o *OCR) Strategy() string { return "tesseract" }

type recognition struct {
	lines []TextLine
	err   error
}

// ScanReceipt recognizes the receipt's text lines, top to bottom. On
// timeout or cancellation no lines are returned.
func (o *OCR) ScanReceipt(ctx context.Context, img Image, lang LanguageHint) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	pngData, err := prepareForOCR(img)
	if err != nil {
		return nil, failed("preparing image", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, failed("recognizing text", err)
	}

	// Tesseract cannot be interrupted; an abandoned run finishes into the
	// buffered channel.
	done := make(chan recognition, 1)
	go func() {
		lines, err := o.recognizer.Recognize(pngData, tesseractLanguages(lang))
		done <- recognition{lines: lines, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, failed("recognizing text", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, failed("recognizing text", r.err)
		}
		return &Result{Kind: KindLines, Lines: orderLines(r.lines)}, nil
	}
}

// Close implements Scanner.
func (o *OCR) Close() error {
	return nil
}

func tesseractLanguages(lang LanguageHint) []string {
	switch lang {
	case LanguageEnglish:
		return []string{"eng"}
	default:
		// Receipts mix Vietnamese and English product names.
		return []string{"vie", "eng"}
	}
}

// orderLines sorts by vertical then horizontal position and drops blank
// lines.
func orderLines(lines []TextLine) []string {
	sorted := make([]TextLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Box.Min, sorted[j].Box.Min
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	out := make([]string, 0, len(sorted))
	for _, l := range sorted {
		text := strings.TrimSpace(l.Text)
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}
