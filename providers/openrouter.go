package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Blackie360/Persona-Studio/models"
)

const openRouterProdURL = "https://openrouter.ai/api/v1"

// OpenRouterGenerator produces avatar images through the OpenRouter chat
// completions API with image output enabled.
type OpenRouterGenerator struct {
	apiKey          string
	model           string
	maxPromptLength int
	baseURL         string
	httpClient      *http.Client
}

func CreateOpenRouterGenerator(apiKey, model string, maxPromptLength int, timeout time.Duration) *OpenRouterGenerator {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OpenRouterGenerator{
		apiKey:          apiKey,
		model:           model,
		maxPromptLength: maxPromptLength,
		baseURL:         openRouterProdURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (g *OpenRouterGenerator) WithBaseURL(baseURL string) *OpenRouterGenerator {
	if baseURL != "" {
		g.baseURL = baseURL
	}
	return g
}

type completionRequest struct {
	Model      string              `json:"model"`
	Messages   []completionMessage `json:"messages"`
	Modalities []string            `json:"modalities"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate runs one image generation call. The call is not idempotent and
// is never retried; the caller settles the ledger on whatever happens.
func (g *OpenRouterGenerator) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GeneratedImage, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("generation api key not configured")
	}

	prompt := req.Prompt
	if g.maxPromptLength > 0 && len(prompt) > g.maxPromptLength {
		prompt = prompt[:g.maxPromptLength]
	}

	body := completionRequest{
		Model: g.model,
		Messages: []completionMessage{
			{Role: "user", Content: g.buildPrompt(prompt, req)},
		},
		Modalities: []string{"image", "text"},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if out.Error != nil && out.Error.Message != "" {
			return nil, fmt.Errorf("generation API error: %s", out.Error.Message)
		}
		return nil, fmt.Errorf("generation API error: %s", resp.Status)
	}

	if len(out.Choices) == 0 || len(out.Choices[0].Message.Images) == 0 {
		return nil, fmt.Errorf("generation API returned no image")
	}

	return &models.GeneratedImage{
		URL:         out.Choices[0].Message.Images[0].ImageURL.URL,
		Description: out.Choices[0].Message.Content,
	}, nil
}

// buildPrompt folds the style selections into the instruction text. A half
// regeneration keeps the subject and only reworks background and lighting.
func (g *OpenRouterGenerator) buildPrompt(prompt string, req *models.GenerateRequest) string {
	instruction := "Transform this description into a stylized avatar portrait: " + prompt
	if req.CostClass == models.CostClassHalf {
		instruction = "Keep the subject unchanged and regenerate only the background and lighting for: " + prompt
	}
	if req.AvatarStyle != "" {
		instruction += ". Art style: " + req.AvatarStyle
	}
	if req.Background != "" {
		instruction += ". Background: " + req.Background
	}
	if req.ColorMood != "" {
		instruction += ". Color mood: " + req.ColorMood
	}
	return instruction
}
