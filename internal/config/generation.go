package config

import (
	"fmt"
	"time"
)

// GenerationConfig configures the visual generation pipeline: concurrency
// caps per capability class and the per-call timeout/retry policy. The
// defaults are starting points, not requirements; providers with different
// quotas get different slot counts.
type GenerationConfig struct {
	// MaxConcurrent bounds the visual fan-out worker pool per campaign.
	MaxConcurrent int `yaml:"max_concurrent" env:"ADFORGE_MAX_CONCURRENT"`

	// Per-capability-class slot limits (global across campaigns).
	TextSlots  int `yaml:"text_slots" env:"ADFORGE_TEXT_SLOTS"`
	ImageSlots int `yaml:"image_slots" env:"ADFORGE_IMAGE_SLOTS"`
	VideoSlots int `yaml:"video_slots" env:"ADFORGE_VIDEO_SLOTS"`

	// Per-call hard timeouts as duration strings ("30s", "2m").
	TextTimeout  string `yaml:"text_timeout" env:"ADFORGE_TEXT_TIMEOUT"`
	ImageTimeout string `yaml:"image_timeout" env:"ADFORGE_IMAGE_TIMEOUT"`
	VideoTimeout string `yaml:"video_timeout" env:"ADFORGE_VIDEO_TIMEOUT"`

	// MaxRetries is the number of additional attempts after the first,
	// applied only to transient errors.
	MaxRetries int `yaml:"max_retries" env:"ADFORGE_MAX_RETRIES"`

	// AssetDir is where generated asset files are written.
	AssetDir string `yaml:"asset_dir" env:"ADFORGE_ASSET_DIR"`
}

// DefaultGenerationConfig returns sensible defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxConcurrent: 5,
		TextSlots:     5,
		ImageSlots:    5,
		VideoSlots:    2,
		TextTimeout:   "30s",
		ImageTimeout:  "30s",
		VideoTimeout:  "120s",
		MaxRetries:    2,
		AssetDir:      "assets",
	}
}

// TextTimeoutDuration parses the text timeout, falling back to 30s.
func (c *GenerationConfig) TextTimeoutDuration() time.Duration {
	return parseDuration(c.TextTimeout, 30*time.Second)
}

// ImageTimeoutDuration parses the image timeout, falling back to 30s.
func (c *GenerationConfig) ImageTimeoutDuration() time.Duration {
	return parseDuration(c.ImageTimeout, 30*time.Second)
}

// VideoTimeoutDuration parses the video timeout, falling back to 120s.
func (c *GenerationConfig) VideoTimeoutDuration() time.Duration {
	return parseDuration(c.VideoTimeout, 120*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks bounds.
func (c *GenerationConfig) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("generation.max_concurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.TextSlots < 1 || c.ImageSlots < 1 || c.VideoSlots < 1 {
		return fmt.Errorf("generation slot limits must be >= 1 (text=%d image=%d video=%d)",
			c.TextSlots, c.ImageSlots, c.VideoSlots)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("generation.max_retries must be >= 0, got %d", c.MaxRetries)
	}
	for _, tt := range []struct{ name, val string }{
		{"text_timeout", c.TextTimeout},
		{"image_timeout", c.ImageTimeout},
		{"video_timeout", c.VideoTimeout},
	} {
		if tt.val == "" {
			continue
		}
		if _, err := time.ParseDuration(tt.val); err != nil {
			return fmt.Errorf("generation.%s: invalid duration %q", tt.name, tt.val)
		}
	}
	return nil
}
