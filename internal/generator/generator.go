package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"dealer-studio-backend/internal/gemini"
	"dealer-studio-backend/internal/models"
)

const DefaultModel = "gemini-3-pro-image-preview"

// ContentGenerator is the subset of the Gemini client the generator needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, req gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error)
}

// GenerationError is returned for every failed generation: refusals, responses
// without an image, and transport failures (Err set).
type GenerationError struct {
	Model        string
	FinishReason string
	Text         string
	Err          error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed (model %s): %v", e.Model, e.Err)
	}
	reason := e.FinishReason
	if reason == "" {
		reason = "UNKNOWN"
	}
	msg := fmt.Sprintf("no image returned (model %s, finish reason %s)", e.Model, reason)
	if e.Text != "" {
		msg += ": " + e.Text
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Request carries the images and instruction for one generation.
type Request struct {
	Original       models.Image
	ReferencePlate *models.Image
	Logo           *models.Image
	Instruction    string
	// AspectRatio such as "4:3". Empty leaves the model default.
	AspectRatio string
}

type Options struct {
	Model  string
	Logger *slog.Logger
}

type Client struct {
	gen    ContentGenerator
	model  string
	logger *slog.Logger
}

func New(gen ContentGenerator, opts Options) *Client {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{gen: gen, model: model, logger: logger}
}

var safetyOff = []gemini.SafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

// Generate makes exactly one call and returns the first inline image.
func (c *Client) Generate(ctx context.Context, req Request) (models.Image, error) {
	if req.Original.Empty() {
		return models.Image{}, &GenerationError{Model: c.model, Err: errors.New("original image is empty")}
	}
	if strings.TrimSpace(req.Instruction) == "" {
		return models.Image{}, &GenerationError{Model: c.model, Err: errors.New("instruction is empty")}
	}

	cfg := &gemini.GenerationConfig{ResponseModalities: []string{"IMAGE", "TEXT"}}
	if req.AspectRatio != "" {
		cfg.ImageConfig = &gemini.ImageConfig{AspectRatio: req.AspectRatio}
	}
	resp, err := c.gen.GenerateContent(ctx, c.model, gemini.GenerateContentRequest{
		Contents:         []gemini.Content{{Role: "user", Parts: buildParts(req)}},
		SafetySettings:   safetyOff,
		GenerationConfig: cfg,
	})
	if err != nil {
		return models.Image{}, &GenerationError{Model: c.model, Err: err}
	}

	blob, ok := resp.FirstInlineData()
	if !ok {
		genErr := &GenerationError{
			Model:        c.model,
			FinishReason: resp.FinishReason(),
			Text:         truncate(strings.TrimSpace(resp.Text()), 200),
		}
		c.logger.Warn("generation returned no image",
			"model", c.model,
			"finish_reason", genErr.FinishReason,
			"text", genErr.Text,
		)
		return models.Image{}, genErr
	}

	img, err := models.ParseDataURL(blob.Data)
	if err != nil {
		return models.Image{}, &GenerationError{Model: c.model, Err: fmt.Errorf("decode output image: %w", err)}
	}
	if blob.MimeType != "" {
		img.MimeType = blob.MimeType
	}
	return img, nil
}

func buildParts(req Request) []gemini.Part {
	parts := []gemini.Part{gemini.ImagePart(req.Original)}
	if req.ReferencePlate != nil && !req.ReferencePlate.Empty() {
		parts = append(parts, gemini.ImagePart(*req.ReferencePlate))
	}
	if req.Logo != nil && !req.Logo.Empty() {
		parts = append(parts, gemini.ImagePart(*req.Logo))
	}
	return append(parts, gemini.TextPart(req.Instruction))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
