package scanning

import (
	"embed"
	"fmt"
	"strings"
)

// PromptVersion identifies the instruction templates under prompts/.
// Bump it whenever a template changes so usage records can be compared.
const PromptVersion = "receipt-extract-v1"

// DefaultPromptLanguage is used when no language is configured
const DefaultPromptLanguage = "en"

//go:embed prompts/*.txt
var promptFS embed.FS

// Prompt is a receipt extraction instruction template
type Prompt struct {
	Version  string
	Language string
	Text     string
}

// LoadPrompt returns the embedded instruction template for a language
func LoadPrompt(language string) (Prompt, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = DefaultPromptLanguage
	}

	data, err := promptFS.ReadFile("prompts/" + language + ".txt")
	if err != nil {
		return Prompt{}, fmt.Errorf("unknown prompt language %q: %w", language, err)
	}

	return Prompt{
		Version:  PromptVersion,
		Language: language,
		Text:     string(data),
	}, nil
}

// PromptLanguages lists the embedded template languages
func PromptLanguages() []string {
	entries, err := promptFS.ReadDir("prompts")
	if err != nil {
		return nil
	}
	languages := make([]string, 0, len(entries))
	for _, e := range entries {
		languages = append(languages, strings.TrimSuffix(e.Name(), ".txt"))
	}
	return languages
}
