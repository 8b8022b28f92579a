package scanning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// jsonObject keeps the raw members of a JSON object. Keys are looked up
// exactly, unlike struct decoding which folds case.
type jsonObject map[string]json.RawMessage

// field returns the raw value under key, or nil when it is absent or null
func (o jsonObject) field(key string) json.RawMessage {
	raw := bytes.TrimSpace(o[key])
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func (o jsonObject) requireString(key string) (string, error) {
	raw := o.field(key)
	if raw == nil {
		return "", fmt.Errorf("missing field %q", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unmarshaling json: field %q: %w", key, err)
	}
	return s, nil
}

// parseReceiptJSON parses the model's answer into a Receipt.
// Markdown code fences and text around the outermost JSON object are dropped
// before decoding. Every field is required; confidence may be a number or a
// numeric string and must lie within [0, 1].
func parseReceiptJSON(text string) (*Receipt, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data jsonObject
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	receipt := &Receipt{}
	fields := []struct {
		name string
		dst  *string
	}{
		{"brand", &receipt.Brand},
		{"store", &receipt.Store},
		{"date", &receipt.Date},
		{"total", &receipt.Total},
	}
	for _, f := range fields {
		value, err := data.requireString(f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = value
	}

	rawItems := data.field("items")
	if rawItems == nil {
		return nil, fmt.Errorf("missing field %q", "items")
	}
	var items []jsonObject
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling json: field %q: %w", "items", err)
	}
	receipt.Items = make([]ReceiptItem, 0, len(items))
	for i, item := range items {
		if item.field("name") == nil || item.field("price") == nil {
			return nil, fmt.Errorf("item %d: name and price are required", i)
		}
		name, err := item.requireString("name")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		price, err := item.requireString("price")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		receipt.Items = append(receipt.Items, ReceiptItem{Name: name, Price: price})
	}

	confidence, err := parseConfidence(data.field("confidence"))
	if err != nil {
		return nil, err
	}
	receipt.Confidence = confidence

	return receipt, nil
}

func parseConfidence(raw json.RawMessage) (float64, error) {
	if raw == nil {
		return 0, errors.New(`missing field "confidence"`)
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("confidence is not a number: %s", raw)
		}
		value, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("confidence is not a number: %w", err)
		}
	}

	if math.IsNaN(value) || value < 0 || value > 1 {
		return 0, fmt.Errorf("confidence %v outside [0, 1]", value)
	}
	return value, nil
}
