package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const defaultServiceURL = "http://localhost:8000"

// Client talks to a face service over HTTP.
//
//	POST /detect?model=hog|cnn   file=<jpeg>            -> {"faces": [Box, ...]}
//	POST /encode                 file=<jpeg> boxes=JSON -> {"embeddings": [[...], ...]}
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new face service client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type detectResponse struct {
	Faces []Box `json:"faces"`
}

type encodeResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// postMultipartImage posts the image as the "file" part plus any extra form fields.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, img *Image, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(img.JPEG); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// DetectFaces asks the service for face boxes using the given detector.
func (c *Client) DetectFaces(ctx context.Context, img *Image, tier Tier) ([]Box, error) {
	if img == nil || len(img.JPEG) == 0 {
		return nil, errors.New("empty image")
	}
	body, err := c.postMultipartImage(ctx, "/detect?model="+url.QueryEscape(tier.String()), img, nil)
	if err != nil {
		return nil, err
	}

	var detResp detectResponse
	if err := json.Unmarshal(body, &detResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return detResp.Faces, nil
}

// ExtractEmbeddings computes one embedding per box.
func (c *Client) ExtractEmbeddings(ctx context.Context, img *Image, boxes []Box) ([][]float32, error) {
	if len(boxes) == 0 {
		return nil, nil
	}
	boxesJSON, err := json.Marshal(boxes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal boxes: %w", err)
	}

	body, err := c.postMultipartImage(ctx, "/encode", img, map[string]string{"boxes": string(boxesJSON)})
	if err != nil {
		return nil, err
	}

	var encResp encodeResponse
	if err := json.Unmarshal(body, &encResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(encResp.Embeddings) != len(boxes) {
		return nil, fmt.Errorf("service returned %d embeddings for %d boxes", len(encResp.Embeddings), len(boxes))
	}
	return encResp.Embeddings, nil
}
