package config

import "fmt"

// LLMConfig configures the external generation providers.
type LLMConfig struct {
	// TextProvider selects the text adapter: "gemini" or "openai".
	TextProvider string `yaml:"text_provider" env:"ADFORGE_TEXT_PROVIDER"`

	// GeminiAPIKey authenticates the Google GenAI client (text, image, video).
	GeminiAPIKey string `yaml:"gemini_api_key" env:"ADFORGE_GEMINI_API_KEY"`

	// OpenAIAPIKey authenticates the OpenAI client (text only).
	OpenAIAPIKey string `yaml:"openai_api_key" env:"ADFORGE_OPENAI_API_KEY"`

	// Models per capability. Empty values fall back to provider defaults.
	TextModel  string `yaml:"text_model" env:"ADFORGE_TEXT_MODEL"`
	ImageModel string `yaml:"image_model" env:"ADFORGE_IMAGE_MODEL"`
	VideoModel string `yaml:"video_model" env:"ADFORGE_VIDEO_MODEL"`
}

// DefaultLLMConfig returns sensible defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		TextProvider: "gemini",
		TextModel:    "gemini-2.0-flash",
		ImageModel:   "imagen-3.0-generate-002",
		VideoModel:   "veo-2.0-generate-001",
	}
}

// Validate checks the provider selection.
func (c *LLMConfig) Validate() error {
	switch c.TextProvider {
	case "gemini", "openai":
		return nil
	default:
		return fmt.Errorf("unknown text provider %q (want gemini or openai)", c.TextProvider)
	}
}
