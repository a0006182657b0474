package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Generator produces a free-text continuation for a system instruction and
// a user message.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

const (
	imStart = "<|im_start|>"
	imEnd   = "<|im_end|>"
)

// TGIClient talks to a Hugging Face text-generation-inference server.
type TGIClient struct {
	baseURL      string
	model        string
	apiKey       string
	maxNewTokens int
	temperature  float64
	client       *http.Client
}

type tgiRequest struct {
	Inputs     string        `json:"inputs"`
	Parameters tgiParameters `json:"parameters"`
}

type tgiParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText bool    `json:"return_full_text"`
}

type tgiResponse struct {
	GeneratedText string `json:"generated_text"`
}

type tgiError struct {
	Error string `json:"error"`
}

// NewTGIClient creates a client from cfg.
func NewTGIClient(cfg domain.GeneratorConfig) *TGIClient {
	maxTokens := cfg.MaxNewTokens
	if maxTokens <= 0 {
		maxTokens = 150
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &TGIClient{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		maxNewTokens: maxTokens,
		temperature:  cfg.Temperature,
		client:       &http.Client{Timeout: timeout},
	}
}

// ChatMLPrompt renders an instruct-model prompt ending at the assistant turn.
func ChatMLPrompt(system, user string) string {
	var b strings.Builder
	b.WriteString(imStart + "system\n" + system + imEnd + "\n")
	b.WriteString(imStart + "user\n" + user + imEnd + "\n")
	b.WriteString(imStart + "assistant\n")
	return b.String()
}

// Generate calls POST /generate once.
func (c *TGIClient) Generate(ctx context.Context, system, user string) (string, error) {
	prompt := ChatMLPrompt(system, user)

	body, err := json.Marshal(tgiRequest{
		Inputs: prompt,
		Parameters: tgiParameters{
			MaxNewTokens:   c.maxNewTokens,
			Temperature:    c.temperature,
			DoSample:       c.temperature > 0,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr tgiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("generation error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return "", fmt.Errorf("generation error (%d): %s", resp.StatusCode, string(respBody))
	}

	text, err := decodeGenerated(respBody)
	if err != nil {
		return "", err
	}
	return Continuation(prompt, text), nil
}

// decodeGenerated accepts the object form TGI returns and the list form of
// the hosted inference API.
func decodeGenerated(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []tgiResponse
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		if len(list) == 0 {
			return "", fmt.Errorf("empty generation list")
		}
		return list[0].GeneratedText, nil
	}

	var single tgiResponse
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return single.GeneratedText, nil
}

// Continuation strips an echoed prompt and anything after the end-of-turn
// marker.
func Continuation(prompt, generated string) string {
	text := strings.TrimPrefix(generated, prompt)
	if i := strings.Index(text, imEnd); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
