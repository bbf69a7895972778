package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/becomeliminal/nim-autopilot/core"
)

// DefaultChannel is the activity log channel posts are written to.
const DefaultChannel = "basileus"

// HTTPSink posts activities to a remote activity log.
type HTTPSink struct {
	url        string
	channel    string
	token      string
	httpClient *http.Client
}

// SinkOption configures an HTTPSink.
type SinkOption func(*HTTPSink)

// WithChannel overrides DefaultChannel.
func WithChannel(channel string) SinkOption {
	return func(s *HTTPSink) {
		if channel != "" {
			s.channel = channel
		}
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) SinkOption {
	return func(s *HTTPSink) { s.token = token }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) SinkOption {
	return func(s *HTTPSink) { s.httpClient = c }
}

// NewHTTPSink creates a sink posting to url.
func NewHTTPSink(url string, opts ...SinkOption) *HTTPSink {
	s := &HTTPSink{
		url:     url,
		channel: DefaultChannel,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish implements Publisher.
func (s *HTTPSink) Publish(ctx context.Context, postType core.ActivityType, activity *core.Activity) error {
	post, err := newPost(s.channel, postType, activity)
	if err != nil {
		return err
	}
	body, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish %s: %w", postType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("publish %s: sink returned status %d: %s", postType, resp.StatusCode, bytes.TrimSpace(msg))
	}

	log.Printf("[PUBLISH] published %s (cycle %s)", postType, activity.CycleID)
	return nil
}
