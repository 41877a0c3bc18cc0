package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiTimeout bounds a single Gemini request.
const DefaultGeminiTimeout = 30 * time.Second

// visionModel is the part of *genai.GenerativeModel the scanner uses.
type visionModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   visionModel
	timeout time.Duration
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"

	return newGemini(client, model, timeout), nil
}

func newGemini(client *genai.Client, model visionModel, timeout time.Duration) *Gemini {
	if timeout <= 0 {
		timeout = DefaultGeminiTimeout
	}
	return &Gemini{client: client, model: model, timeout: timeout}
}

// Strategy implements Scanner.
func (g *Gemini) Strategy() string { return "gemini" }

// ScanReceipt sends the receipt to Gemini and validates the structured
// items it answers with.
func (g *Gemini) ScanReceipt(ctx context.Context, img Image, lang LanguageHint) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pngData, err := toPNG(img)
	if err != nil {
		return nil, failed("preparing image", err)
	}

	// genai.ImageData expects the format suffix, not the full MIME type.
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(promptFor(lang)),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, failed("gemini request", errors.Join(ctxErr, err))
		}
		return nil, failed("gemini request", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, malformed("gemini response", errors.New("no candidates"))
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	items, err := parseItemsJSON(text.String())
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindItems, Items: items}, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
