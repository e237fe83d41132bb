// Package capability isolates calls to external generation services behind
// narrow, uniform contracts. The orchestrators never depend on a specific
// provider: they see a TextGenerator, ImageGenerator, or VideoGenerator and
// nothing else.
//
// Two rules every adapter must obey:
//   - every call carries a hard timeout;
//   - a failed generation returns an explicit error, never a placeholder
//     asset. Substituting unrelated content on failure is forbidden.
package capability

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind is a capability class. Each class has its own concurrency slots and
// timeout defaults because provider quotas differ per class.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// BrandContext carries the business-analysis fields that steer generation.
// Adapters fold it into the provider request so generated content stays on
// brand.
type BrandContext struct {
	Company  string
	Voice    string
	Tone     string
	Keywords []string
	Avoid    []string
	Audience string
}

// StylePrompt renders the brand context as a prompt suffix for visual
// generation.
func (b BrandContext) StylePrompt() string {
	var parts []string
	if b.Voice != "" {
		parts = append(parts, fmt.Sprintf("Brand voice: %s.", b.Voice))
	}
	if b.Tone != "" {
		parts = append(parts, fmt.Sprintf("Tone: %s.", b.Tone))
	}
	if len(b.Keywords) > 0 {
		parts = append(parts, fmt.Sprintf("Emphasize: %s.", strings.Join(b.Keywords, ", ")))
	}
	if len(b.Avoid) > 0 {
		parts = append(parts, fmt.Sprintf("Avoid: %s.", strings.Join(b.Avoid, ", ")))
	}
	return strings.Join(parts, " ")
}

// SystemPrompt renders the brand context as a system instruction for text
// generation.
func (b BrandContext) SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a marketing copywriter")
	if b.Company != "" {
		fmt.Fprintf(&sb, " for %s", b.Company)
	}
	sb.WriteString(".")
	if b.Audience != "" {
		fmt.Fprintf(&sb, " The audience is %s.", b.Audience)
	}
	if s := b.StylePrompt(); s != "" {
		sb.WriteString(" ")
		sb.WriteString(s)
	}
	return sb.String()
}

// Options tune a single generation call.
type Options struct {
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	AspectRatio string
}

// Asset is the provider-independent result of an image or video generation.
type Asset struct {
	Kind        Kind
	Ref         string // local file path or provider URL
	MIMEType    string
	Provider    string
	Model       string
	GeneratedAt time.Time
}

// TextGenerator produces marketing copy or structured text from a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, brand BrandContext, opts Options) (string, error)
}

// ImageGenerator produces one image asset from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, brand BrandContext, opts Options) (*Asset, error)
}

// VideoGenerator produces one video asset from a prompt.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, prompt string, brand BrandContext, opts Options) (*Asset, error)
}

// callContext applies the per-call hard timeout.
func callContext(ctx context.Context, opts Options, fallback time.Duration) (context.Context, context.CancelFunc) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = fallback
	}
	return context.WithTimeout(ctx, timeout)
}
