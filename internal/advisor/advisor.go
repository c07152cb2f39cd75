// Package advisor asks a chat-completions model for a short description of
// a plant disease and a few treatment steps.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/leafscan/internal/imageprocessor"
)

// Details is what the result page shows below the diagnosis.
type Details struct {
	Description string   `json:"description"`
	Treatments  []string `json:"treatments"`
}

var (
	unavailableDetails = Details{
		Description: "Description unavailable. Please provide an OpenRouter API Key to fetch details.",
		Treatments:  []string{"Add an API key to the environment", "Restart the application", "Try again"},
	}
	upstreamErrorDetails = Details{
		Description: "Could not fetch details from AI.",
		Treatments:  []string{"Check network connection", "Verify API Key"},
	}
	connectErrorDetails = Details{
		Description: "Error connecting to knowledge base.",
		Treatments:  []string{"System Error"},
	}
)

// Config configures the OpenRouter client.
type Config struct {
	APIKey  string
	Model   string
	URL     string
	Timeout time.Duration
}

// ErrNotConfigured is returned by Lookup when no API key is set.
var ErrNotConfigured = errors.New("advisor: no API key configured")

// Client fetches disease details. Lookup always returns something the page
// can show; on failure that is a canned Details value next to the error.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client. A zero Timeout means 30s.
func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger.Named("advisor"),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const promptTemplate = `Act as an agricultural expert. Provide a short description and 3 specific treatment steps for the plant disease for small farmers: %q.

Format the output EXACTLY as this JSON:
{
    "description": "2-3 sentences explaining the disease.",
    "treatments": ["Step 1", "Step 2", "Step 3"]
}`

// Lookup returns details for a raw model class such as "Tomato___Late_blight".
// A non-nil error means the returned Details is a placeholder that must not
// be cached.
func (c *Client) Lookup(ctx context.Context, class string) (Details, error) {
	if !c.Enabled() {
		return unavailableDetails, ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: fmt.Sprintf(promptTemplate, imageprocessor.DisplayName(class))}},
	})
	if err != nil {
		return connectErrorDetails, fmt.Errorf("advisor: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return connectErrorDetails, fmt.Errorf("advisor: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("advisor request failed", zap.String("class", class), zap.Error(err))
		return connectErrorDetails, fmt.Errorf("advisor: request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return connectErrorDetails, fmt.Errorf("advisor: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("advisor returned error status", zap.Int("status", resp.StatusCode), zap.ByteString("body", payload))
		return upstreamErrorDetails, fmt.Errorf("advisor: upstream status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return upstreamErrorDetails, fmt.Errorf("advisor: decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return upstreamErrorDetails, errors.New("advisor: response has no choices")
	}
	details, err := ParseDetails(chat.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn("malformed advisor content", zap.String("class", class), zap.Error(err))
		return connectErrorDetails, err
	}
	return details, nil
}

var (
	listItemRe = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
)

// ParseDetails decodes the model's JSON answer. Markdown code fences are
// stripped and treatments may be a list or an HTML <ul> string; markup is
// reduced to plain text.
func ParseDetails(content string) (Details, error) {
	content = strings.TrimSpace(content)
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.TrimSpace(strings.ReplaceAll(content, "```", ""))

	var raw struct {
		Description string          `json:"description"`
		Treatments  json.RawMessage `json:"treatments"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Details{}, err
	}

	details := Details{Description: plainText(raw.Description)}
	if len(raw.Treatments) == 0 {
		return details, nil
	}

	var list []string
	if err := json.Unmarshal(raw.Treatments, &list); err != nil {
		var single string
		if err := json.Unmarshal(raw.Treatments, &single); err != nil {
			return Details{}, fmt.Errorf("treatments: %w", err)
		}
		list = []string{single}
	}
	for _, item := range list {
		details.Treatments = append(details.Treatments, splitItems(item)...)
	}
	return details, nil
}

func splitItems(s string) []string {
	matches := listItemRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		if text := plainText(s); text != "" {
			return []string{text}
		}
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if text := plainText(m[1]); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func plainText(s string) string {
	return strings.Join(strings.Fields(tagRe.ReplaceAllString(s, " ")), " ")
}
