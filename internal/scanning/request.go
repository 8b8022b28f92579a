package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	anthropicVersion = "bedrock-2023-05-31"
	maxOutputTokens  = 1000
)

// modelRequest is the Anthropic messages envelope sent to every backend
type modelRequest struct {
	AnthropicVersion string         `json:"anthropic_version"`
	MaxTokens        int            `json:"max_tokens"`
	Messages         []modelMessage `json:"messages"`
}

type modelMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Source *imageSource `json:"source,omitempty"`
	Text   string       `json:"text,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// modelResponse is the reply envelope. Only content[0].text and usage are read.
type modelResponse struct {
	Content []responseBlock `json:"content"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

type responseBlock struct {
	Type string  `json:"type,omitempty"`
	Text *string `json:"text"`
}

// Usage is the token accounting reported by the model
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// buildRequest encodes the request for one image and one instruction block
func buildRequest(imageBase64, mediaType, instructions string) ([]byte, error) {
	req := modelRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxOutputTokens,
		Messages: []modelMessage{
			{
				Role: "user",
				Content: []contentBlock{
					{
						Type: "image",
						Source: &imageSource{
							Type:      "base64",
							MediaType: mediaType,
							Data:      imageBase64,
						},
					},
					{
						Type: "text",
						Text: instructions,
					},
				},
			},
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return data, nil
}

// extractAnswer returns content[0].text and the raw usage object
func extractAnswer(body []byte) (string, json.RawMessage, error) {
	var resp modelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, fmt.Errorf("decoding response envelope: %w", err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == nil {
		return "", resp.Usage, errors.New("response has no content[0].text")
	}
	return *resp.Content[0].Text, resp.Usage, nil
}

// encodeResponse builds a reply envelope for backends that don't speak the
// messages API natively
func encodeResponse(text string, usage Usage) ([]byte, error) {
	usageJSON, err := json.Marshal(usage)
	if err != nil {
		return nil, fmt.Errorf("marshaling usage: %w", err)
	}
	data, err := json.Marshal(modelResponse{
		Content: []responseBlock{{Type: "text", Text: &text}},
		Usage:   usageJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling response: %w", err)
	}
	return data, nil
}

// decodeRequest is the inverse of buildRequest, used by translating backends
func decodeRequest(data []byte) (images []imageSource, texts []string, err error) {
	var req modelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, nil, fmt.Errorf("decoding request: %w", err)
	}
	for _, msg := range req.Messages {
		for _, block := range msg.Content {
			switch block.Type {
			case "image":
				if block.Source != nil {
					images = append(images, *block.Source)
				}
			case "text":
				texts = append(texts, block.Text)
			}
		}
	}
	return images, texts, nil
}
