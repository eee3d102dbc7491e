// Package backend talks to the accompaniment generation and piano-roll
// rendering service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// RenderFileName is the synthetic filename sent with piano-roll requests.
const RenderFileName = "generated.mid"

// maxErrorBody caps how much of a failed response is read for error detail.
const maxErrorBody = 64 << 10

// Client communicates with the generation service REST API.
type Client struct {
	apiURL string
	http   *http.Client
}

// NewClient creates a service client.
func NewClient(apiURL string, timeout time.Duration) *Client {
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		http:   &http.Client{Timeout: timeout},
	}
}

// GenerateForm holds the already-validated fields of a generation request.
type GenerateForm struct {
	Model    string
	Density  string // decimal, as entered
	FileName string
	File     []byte
}

// ServiceError is a non-2xx reply. Detail is empty when the body did not
// carry a usable error detail.
type ServiceError struct {
	Status int
	Detail string
}

func (e *ServiceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("service status %d", e.Status)
	}
	return fmt.Sprintf("service status %d: %s", e.Status, e.Detail)
}

type modelsResp struct {
	Models []string `json:"models"`
}

// Health checks that the service answers at all.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return &ServiceError{Status: resp.StatusCode}
	}
	return nil
}

// Models fetches the model catalog. A missing or null list decodes as empty.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result modelsResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	if result.Models == nil {
		return []string{}, nil
	}
	return result.Models, nil
}

// Generate submits a source sequence and returns the generated artifact bytes.
func (c *Client) Generate(ctx context.Context, form GenerateForm) ([]byte, error) {
	body, contentType, err := encodeMultipart(
		[][2]string{{"model", form.Model}, {"density", form.Density}},
		form.FileName, form.File,
	)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/generate", contentType, body)
	if err != nil {
		return nil, fmt.Errorf("submit generation: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// PianoRoll asks the service to render an artifact and returns the document markup.
func (c *Client) PianoRoll(ctx context.Context, data []byte) (string, error) {
	body, contentType, err := encodeMultipart(nil, RenderFileName, data)
	if err != nil {
		return "", err
	}

	resp, err := c.post(ctx, "/pianoroll", contentType, body)
	if err != nil {
		return "", fmt.Errorf("request pianoroll: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read pianoroll: %w", err)
	}
	return string(doc), nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.http.Do(req)
}

// checkStatus turns a non-2xx reply into a *ServiceError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail, _ := ParseErrorDetail(raw)
	return &ServiceError{Status: resp.StatusCode, Detail: detail}
}

func encodeMultipart(fields [][2]string, fileName string, file []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := fw.Write(file); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
