package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no Gemini model is configured
const DefaultGeminiModel = "gemini-2.5-pro"

// Gemini implements ModelClient using Google Gemini. The messages envelope
// is translated to Gemini parts and the answer wrapped back into one.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini ModelClient
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Invoke generates content for the image and text blocks of the request
func (g *Gemini) Invoke(ctx context.Context, request []byte) ([]byte, error) {
	images, texts, err := decodeRequest(request)
	if err != nil {
		return nil, err
	}

	parts := make([]genai.Part, 0, len(images)+len(texts))
	for _, img := range images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding image block: %w", err)
		}
		// genai.ImageData expects just the format suffix (e.g., "jpeg")
		parts = append(parts, genai.ImageData(strings.TrimPrefix(img.MediaType, "image/"), data))
	}
	for _, text := range texts {
		parts = append(parts, genai.Text(text))
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	// Gemini token counts are not mapped; usage is reported as zero
	return encodeResponse(responseText.String(), Usage{})
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
