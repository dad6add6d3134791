// Package telegram delivers carousels and status updates through the
// Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/carouselmaker/internal/generation"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 30 * time.Second

	// maxMediaGroup is the Bot API limit on photos per sendMediaGroup call.
	maxMediaGroup = 10
)

// ErrAPI is wrapped by every error reported by the Bot API itself.
var ErrAPI = errors.New("telegram api error")

// Client implements generation.Delivery.
type Client struct {
	baseURL   string
	token     string
	http      *http.Client
	mediaHTTP *http.Client
	logger    *slog.Logger
}

var _ generation.Delivery = (*Client)(nil)

// Option customizes a client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for text requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithMediaTimeout sets a separate, usually longer, timeout for uploads.
func WithMediaTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.mediaHTTP = &http.Client{Timeout: timeout, Transport: c.http.Transport}
		}
	}
}

// WithBaseURL overrides the default base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a Bot API client for token.
func NewClient(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram client: missing bot token")
	}
	c := &Client{
		baseURL: defaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mediaHTTP == nil {
		c.mediaHTTP = c.http
	}
	c.logger = c.logger.With("component", "telegram_client")
	return c, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

type message struct {
	MessageID int `json:"message_id"`
}

type inputMediaPhoto struct {
	Type  string `json:"type"`
	Media string `json:"media"`
}

// SendMessage sends a plain text message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.SendStatus(ctx, chatID, text)
	return err
}

// SendStatus sends text and returns the new message's ID so later
// progress updates can edit it.
func (c *Client) SendStatus(ctx context.Context, chatID int64, text string) (int, error) {
	var msg message
	err := c.callJSON(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, &msg)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessage replaces the text of a previously sent message.
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	return c.callJSON(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, nil)
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.callJSON(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// SendMediaGroup uploads images as one album, in order. Albums larger than
// the API limit are split into consecutive groups.
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, images [][]byte) error {
	if len(images) == 0 {
		return errors.New("telegram client: empty media group")
	}
	for start := 0; start < len(images); start += maxMediaGroup {
		end := min(start+maxMediaGroup, len(images))
		if err := c.sendMediaChunk(ctx, chatID, images[start:end], start); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendMediaChunk(ctx context.Context, chatID int64, images [][]byte, offset int) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("chat_id", fmt.Sprint(chatID)); err != nil {
		return fmt.Errorf("telegram client: write chat_id field: %w", err)
	}

	media := make([]inputMediaPhoto, len(images))
	for i, img := range images {
		name := fmt.Sprintf("slide_%d", offset+i+1)
		media[i] = inputMediaPhoto{Type: "photo", Media: "attach://" + name}

		field, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			return fmt.Errorf("telegram client: create file field: %w", err)
		}
		if _, err := field.Write(img); err != nil {
			return fmt.Errorf("telegram client: copy image: %w", err)
		}
	}

	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("telegram client: encode media: %w", err)
	}
	if err := writer.WriteField("media", string(mediaJSON)); err != nil {
		return fmt.Errorf("telegram client: write media field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("telegram client: close multipart writer: %w", err)
	}

	return c.do(ctx, c.mediaHTTP, "sendMediaGroup", writer.FormDataContentType(), body, nil)
}

func (c *Client) callJSON(ctx context.Context, method string, params any, out any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram client: encode %s: %w", method, err)
	}
	return c.do(ctx, c.http, method, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, client *http.Client, method, contentType string, body io.Reader, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("telegram client: build %s request: %w", method, err)
	}
	request.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := client.Do(request)
	if err != nil {
		// The URL carries the token; report only the method.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram client: %s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram client: read %s response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("telegram client: decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !parsed.OK {
		return fmt.Errorf("%w: %s: %d %s", ErrAPI, method, parsed.ErrorCode, parsed.Description)
	}

	c.logger.DebugContext(ctx, "telegram call succeeded",
		"method", method,
		"duration_ms", time.Since(start).Milliseconds())

	if out != nil && len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("telegram client: decode %s result: %w", method, err)
		}
	}
	return nil
}
