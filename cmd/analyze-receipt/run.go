package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zombor/receipt-analyzer/internal/config"
	"github.com/zombor/receipt-analyzer/internal/scanning"
)

func run(ctx context.Context, path string, modelFlags *config.ModelFlags, logger *slog.Logger) error {
	prompt, err := scanning.LoadPrompt(*modelFlags.PromptLang)
	if err != nil {
		return fmt.Errorf("loading prompt: %w", err)
	}

	backend, err := scanning.NewModelClient(ctx, modelFlags.ClientConfig())
	if err != nil {
		return fmt.Errorf("initializing model backend: %w", err)
	}
	defer backend.Close()

	analyzer := scanning.NewAnalyzerWithDeps(backend, prompt, nil, nil, logger)
	return analyzeFile(ctx, analyzer, path, os.Stdout)
}

// analyzeFile reads the image at path and prints its receipt as indented JSON
func analyzeFile(ctx context.Context, analyzer *scanning.Analyzer, path string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	receipt, err := analyzer.Analyze(ctx, data)
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", path, err)
	}

	out, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding receipt: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
