package scanning

import (
	"context"
	"errors"
)

// Receipt contains the purchase data extracted from a receipt image
type Receipt struct {
	Brand      string        `json:"brand"`
	Store      string        `json:"store"`
	Date       string        `json:"date"` // as printed, not normalized
	Items      []ReceiptItem `json:"items"`
	Total      string        `json:"total"` // raw currency text
	Confidence float64       `json:"confidence"`
}

// ReceiptItem is one line of a receipt, in printed order
type ReceiptItem struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// ModelClient sends one encoded request envelope to a multimodal model and
// returns the raw response envelope.
type ModelClient interface {
	Invoke(ctx context.Context, request []byte) ([]byte, error)
}

// Error kinds returned by Analyzer.Analyze. Match with errors.Is.
var (
	ErrImagePreparation = errors.New("image preparation failed")
	ErrTransport        = errors.New("model invocation failed")
	ErrMalformedReply   = errors.New("malformed model reply")
)

// Errors returned by Reducer.Reduce.
var (
	ErrDecodeImage           = errors.New("decoding image")
	ErrImageTooSmallToShrink = errors.New("image too small to shrink")
)
