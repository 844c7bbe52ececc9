package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Generator is the external image generation boundary. It is a slow,
// fallible black box; callers only see the result URL or an error.
type Generator interface {
	GenerateBackdrop(ctx context.Context, styleDescription string) (string, error)
	GenerateComposite(ctx context.Context, backdropURL string, memberURLs []string, styleDescription string) (string, error)
}

// Client calls a Replicate-style prediction API over HTTP.
type Client struct {
	baseURL     string
	token       string
	model       string
	size        string
	aspectRatio string
	httpClient  *http.Client
}

// Options configures the generator client
type Options struct {
	BaseURL     string
	Token       string
	Model       string
	Size        string
	AspectRatio string
}

// NewClient creates a generator API client
func NewClient(opts Options) *Client {
	if opts.Size == "" {
		opts.Size = "4K"
	}
	if opts.AspectRatio == "" {
		opts.AspectRatio = "16:9"
	}
	return &Client{
		baseURL:     opts.BaseURL,
		token:       opts.Token,
		model:       opts.Model,
		size:        opts.Size,
		aspectRatio: opts.AspectRatio,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type predictionInput struct {
	Prompt      string   `json:"prompt"`
	Size        string   `json:"size"`
	AspectRatio string   `json:"aspect_ratio"`
	ImageInput  []string `json:"image_input,omitempty"`
}

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionResponse struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  *string         `json:"error"`
}

// GenerateBackdrop requests a people-free scene image for the style description
func (c *Client) GenerateBackdrop(ctx context.Context, styleDescription string) (string, error) {
	prompt := fmt.Sprintf(
		"A photo shoot setup or stage that is set to look like the following, with no people currently in it: %s",
		styleDescription)
	return c.predict(ctx, predictionInput{
		Prompt:      prompt,
		Size:        c.size,
		AspectRatio: c.aspectRatio,
	})
}

// GenerateComposite requests a group image placing the members onto the backdrop
func (c *Client) GenerateComposite(ctx context.Context, backdropURL string, memberURLs []string, styleDescription string) (string, error) {
	prompt := fmt.Sprintf(
		"Using the backdrop of image_0, add all the people from the remaining images to the photo. "+
			"Make the outfits and expressions match what might happen in a photobooth that: %s",
		styleDescription)
	return c.predict(ctx, predictionInput{
		Prompt:      prompt,
		Size:        c.size,
		AspectRatio: c.aspectRatio,
		ImageInput:  append([]string{backdropURL}, memberURLs...),
	})
}

func (c *Client) predict(ctx context.Context, input predictionInput) (string, error) {
	payload, err := json.Marshal(predictionRequest{Input: input})
	if err != nil {
		return "", fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s/predictions", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build prediction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read prediction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("prediction returned status %d: %s", resp.StatusCode, string(body))
	}

	var prediction predictionResponse
	if err := json.Unmarshal(body, &prediction); err != nil {
		return "", fmt.Errorf("failed to parse prediction response: %w", err)
	}
	if prediction.Error != nil {
		return "", fmt.Errorf("prediction failed: %s", *prediction.Error)
	}

	return outputURL(prediction.Output)
}

// outputURL accepts either a single URL or a list of URLs in the output field
func outputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("prediction returned no output")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0], nil
	}
	return "", fmt.Errorf("prediction output has unexpected shape: %s", string(raw))
}
