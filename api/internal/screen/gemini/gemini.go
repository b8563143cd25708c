package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"photo-screener/api/internal/screen"
)

type Engine struct {
	APIKey string
}

func New(apiKey string) *Engine {
	return &Engine{APIKey: strings.TrimSpace(apiKey)}
}

func (e *Engine) Name() string { return "gemini" }

// responseSchema - ровно три поля: status, reasons, feedback.
func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"status": {
				Type:        genai.TypeString,
				Enum:        []string{string(screen.Pass), string(screen.Fail)},
				Description: "The final verdict.",
			},
			"reasons": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "List of reasons for failure. If PASS, this can be empty or contain minor warnings.",
			},
			"feedback": {
				Type:        genai.TypeString,
				Description: "A short, helpful tip for the photographer based on the analysis.",
			},
		},
		Required: []string{"status", "reasons", "feedback"},
	}
}

// Generate отправляет картинку и инструкцию в модель и возвращает сырой JSON-текст ответа.
func (e *Engine) Generate(ctx context.Context, model string, image []byte, mime, prompt string) (string, error) {
	if e.APIKey == "" {
		return "", screen.ErrNotConfigured
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(strings.TrimSpace(model))
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}

	if mime == "" {
		mime = "image/jpeg"
	}
	parts := []genai.Part{
		genai.Blob{MIMEType: mime, Data: image},
		genai.Text(prompt),
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: prompt blocked (%s)", screen.ErrMalformed, resp.PromptFeedback.BlockReason)
	}
	txt := firstText(resp)
	if strings.TrimSpace(txt) == "" {
		return "", fmt.Errorf("%w: empty response from %s", screen.ErrMalformed, model)
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
