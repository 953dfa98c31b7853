// Package gemini adapts google.golang.org/genai into the aiproxy.Provider
// interface, grounded directly in the teacher's
// ai/internal/llm/gemini/client.go and config.go.
package gemini

import (
	"errors"
	"os"
)

// Config holds Gemini-specific configuration.
type Config struct {
	APIKey string
	Model  string
}

// NewConfig reads Gemini configuration from the environment.
func NewConfig() (*Config, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable is required")
	}
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Config{APIKey: apiKey, Model: model}, nil
}
