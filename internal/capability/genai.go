package capability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"adforge/internal/campaign"
	"adforge/internal/logging"
)

// Default models per capability class.
const (
	defaultGeminiTextModel = "gemini-2.0-flash"
	defaultImagenModel     = "imagen-3.0-generate-002"
	defaultVeoModel        = "veo-2.0-generate-001"
)

// videoPollInterval is how often a pending video operation is polled.
const videoPollInterval = 10 * time.Second

// GeminiClient implements all three capability classes on the Google GenAI
// API: Gemini for text, Imagen for images, Veo for video. Generated binary
// assets are written under assetDir and referenced by path.
type GeminiClient struct {
	client   *genai.Client
	assetDir string
}

// NewGeminiClient creates a client for the Google GenAI API.
func NewGeminiClient(ctx context.Context, apiKey, assetDir string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, assetDir: assetDir}, nil
}

// GenerateText produces copy with Gemini, steered by the brand context as a
// system instruction.
func (g *GeminiClient) GenerateText(ctx context.Context, prompt string, brand BrandContext, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = defaultGeminiTextModel
	}
	callCtx, cancel := callContext(ctx, opts, 30*time.Second)
	defer cancel()

	logging.APIDebug("gemini text call (model=%s, prompt=%d chars)", model, len(prompt))
	resp, err := g.client.Models.GenerateContent(callCtx, model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(brand.SystemPrompt(), genai.RoleUser),
		})
	if err != nil {
		return "", classifyGenAIError("gemini", "text generation", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &campaign.ContentPolicyError{
			Provider: "gemini",
			Reason:   string(resp.PromptFeedback.BlockReason),
		}
	}
	text := resp.Text()
	if text == "" {
		return "", &campaign.ExternalServiceError{
			Provider:  "gemini",
			Operation: "text generation",
			Transient: true,
			Err:       errors.New("empty response"),
		}
	}
	return text, nil
}

// GenerateImage produces one image with Imagen and writes it to the asset
// directory.
func (g *GeminiClient) GenerateImage(ctx context.Context, prompt string, brand BrandContext, opts Options) (*Asset, error) {
	model := opts.Model
	if model == "" {
		model = defaultImagenModel
	}
	callCtx, cancel := callContext(ctx, opts, 30*time.Second)
	defer cancel()

	fullPrompt := prompt
	if style := brand.StylePrompt(); style != "" {
		fullPrompt = prompt + " " + style
	}

	cfg := &genai.GenerateImagesConfig{NumberOfImages: 1}
	if opts.AspectRatio != "" {
		cfg.AspectRatio = opts.AspectRatio
	}

	logging.API("imagen call (model=%s)", model)
	resp, err := g.client.Models.GenerateImages(callCtx, model, fullPrompt, cfg)
	if err != nil {
		return nil, classifyGenAIError("imagen", "image generation", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, &campaign.ExternalServiceError{
			Provider:  "imagen",
			Operation: "image generation",
			Transient: true,
			Err:       errors.New("no images returned"),
		}
	}

	img := resp.GeneratedImages[0]
	if img.RAIFilteredReason != "" {
		return nil, &campaign.ContentPolicyError{Provider: "imagen", Reason: img.RAIFilteredReason}
	}
	if img.Image == nil || len(img.Image.ImageBytes) == 0 {
		return nil, &campaign.ExternalServiceError{
			Provider:  "imagen",
			Operation: "image generation",
			Transient: true,
			Err:       errors.New("image payload missing"),
		}
	}

	ref, err := g.writeAsset("img", ".png", img.Image.ImageBytes)
	if err != nil {
		return nil, err
	}
	mime := img.Image.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &Asset{
		Kind:        KindImage,
		Ref:         ref,
		MIMEType:    mime,
		Provider:    "imagen",
		Model:       model,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// GenerateVideo produces one video with Veo. Veo runs as a long-running
// operation; the call polls until done or the per-call deadline expires.
func (g *GeminiClient) GenerateVideo(ctx context.Context, prompt string, brand BrandContext, opts Options) (*Asset, error) {
	model := opts.Model
	if model == "" {
		model = defaultVeoModel
	}
	callCtx, cancel := callContext(ctx, opts, 120*time.Second)
	defer cancel()

	fullPrompt := prompt
	if style := brand.StylePrompt(); style != "" {
		fullPrompt = prompt + " " + style
	}

	logging.API("veo call (model=%s)", model)
	op, err := g.client.Models.GenerateVideos(callCtx, model, fullPrompt, nil,
		&genai.GenerateVideosConfig{NumberOfVideos: 1})
	if err != nil {
		return nil, classifyGenAIError("veo", "video generation", err)
	}

	for !op.Done {
		select {
		case <-callCtx.Done():
			return nil, &campaign.ExternalServiceError{
				Provider:  "veo",
				Operation: "video generation",
				Transient: true,
				Err:       callCtx.Err(),
			}
		case <-time.After(videoPollInterval):
		}
		op, err = g.client.Operations.GetVideosOperation(callCtx, op, nil)
		if err != nil {
			return nil, classifyGenAIError("veo", "video polling", err)
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return nil, &campaign.ExternalServiceError{
			Provider:  "veo",
			Operation: "video generation",
			Transient: true,
			Err:       errors.New("no videos returned"),
		}
	}

	video := op.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, &campaign.ExternalServiceError{
			Provider:  "veo",
			Operation: "video generation",
			Transient: true,
			Err:       errors.New("video payload missing"),
		}
	}
	if len(video.Video.VideoBytes) == 0 {
		if _, err := g.client.Files.Download(callCtx, video.Video, nil); err != nil {
			return nil, classifyGenAIError("veo", "video download", err)
		}
	}

	ref, err := g.writeAsset("vid", ".mp4", video.Video.VideoBytes)
	if err != nil {
		return nil, err
	}
	mime := video.Video.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	return &Asset{
		Kind:        KindVideo,
		Ref:         ref,
		MIMEType:    mime,
		Provider:    "veo",
		Model:       model,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (g *GeminiClient) writeAsset(prefix, ext string, data []byte) (string, error) {
	name := fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), ext)
	path := filepath.Join(g.assetDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write asset %s: %w", name, err)
	}
	return path, nil
}

// classifyGenAIError maps a GenAI API failure onto the domain taxonomy.
// Quota exhaustion (429) is permanent for our purposes: retrying inside the
// pipeline only burns more quota. 5xx and deadline errors are transient.
func classifyGenAIError(provider, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &campaign.ExternalServiceError{
			Provider: provider, Operation: operation, Transient: true, Err: err,
		}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &campaign.ExternalServiceError{
				Provider: provider, Operation: operation, Transient: false, Err: err,
			}
		case apiErr.Code >= 500:
			return &campaign.ExternalServiceError{
				Provider: provider, Operation: operation, Transient: true, Err: err,
			}
		}
		return &campaign.ExternalServiceError{
			Provider: provider, Operation: operation, Transient: false, Err: err,
		}
	}

	// Network-level failures without an API status are worth one retry.
	return &campaign.ExternalServiceError{
		Provider: provider, Operation: operation, Transient: true, Err: err,
	}
}
