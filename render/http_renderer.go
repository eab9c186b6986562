// Package render converts markdown reports into office documents through an external
// rendering service.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxDocumentBytes = 32 << 20

var ErrUnsupportedFormat = errors.New("renderer does not support format")

var contentTypes = map[string]string{
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"pdf":  "application/pdf",
}

// HTTPRenderer posts markdown to the rendering service and returns the produced document
type HTTPRenderer struct {
	baseURL string
	client  *http.Client
}

type renderRequest struct {
	Markdown string `json:"markdown"`
	Format   string `json:"format"`
}

// NewHTTPRenderer creates a renderer for the service at baseURL
func NewHTTPRenderer(baseURL string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPRenderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Render converts markdown into the requested format (docx or pdf)
func (r *HTTPRenderer) Render(ctx context.Context, markdown string, format string) ([]byte, string, error) {
	contentType, ok := contentTypes[format]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	body, err := json.Marshal(renderRequest{Markdown: markdown, Format: format})
	if err != nil {
		return nil, "", fmt.Errorf("marshal render request: %w", err)
	}

	url := fmt.Sprintf("%s/render", r.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("create render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("call render service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read render response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("render service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if len(data) == 0 {
		return nil, "", errors.New("render service returned an empty document")
	}

	if got := resp.Header.Get("Content-Type"); got != "" && !strings.HasPrefix(got, "application/json") {
		contentType = got
	}
	return data, contentType, nil
}
