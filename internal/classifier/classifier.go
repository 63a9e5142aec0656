package classifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"dealer-studio-backend/internal/gemini"
	"dealer-studio-backend/internal/models"
)

const DefaultModel = "gemini-2.5-flash"

// ContentGenerator is the subset of the Gemini client the classifier needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, req gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error)
}

// Classification is the outcome of one classify call. Fallback is set when the
// category is the default rather than the model's answer.
type Classification struct {
	Category   models.Category
	Confidence float64
	Fallback   bool
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
	return &Client{
		gen:    gen,
		model:  model,
		logger: logger,
	}
}

type classificationPayload struct {
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence"`
}

// Classify sends one image to the vision model. It never fails: transport
// errors, context expiry and out-of-vocabulary labels all yield EXTERIOR_CAR.
func (c *Client) Classify(ctx context.Context, img models.Image) Classification {
	resp, err := c.gen.GenerateContent(ctx, c.model, gemini.GenerateContentRequest{
		Contents: []gemini.Content{{
			Role: "user",
			Parts: []gemini.Part{
				gemini.ImagePart(img),
				gemini.TextPart(classificationPrompt),
			},
		}},
		GenerationConfig: &gemini.GenerationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		c.logger.Warn("angle classification failed, using default", "error", err)
		return fallback()
	}

	result, ok := ParseResponse(resp.Text())
	if !ok {
		c.logger.Warn("angle classification returned unusable label, using default",
			"raw", truncate(resp.Text(), 200))
		return fallback()
	}

	c.logger.Debug("angle classified", "category", result.Category, "confidence", result.Confidence)
	return result
}

// ParseResponse decodes the model's JSON answer. ok is false when the text is
// not JSON or the category is outside the vocabulary.
func ParseResponse(text string) (Classification, bool) {
	text = stripCodeFence(text)
	if text == "" {
		return Classification{}, false
	}

	var payload classificationPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Classification{}, false
	}

	category, ok := models.ParseCategory(payload.Category)
	if !ok {
		return Classification{}, false
	}

	confidence := 0.0
	if payload.Confidence != nil {
		confidence = *payload.Confidence
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Classification{Category: category, Confidence: confidence}, true
}

func fallback() Classification {
	return Classification{Category: models.CategoryExterior, Fallback: true}
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
