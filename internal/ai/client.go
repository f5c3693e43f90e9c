// Package ai talks to an OpenAI-compatible API for message embeddings and
// smart-reply completions.
package ai

import (
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

type Options struct {
	APIKey     string
	OrgID      string
	BaseURL    string
	AppVersion string
	Env        string
}

// NewClient builds the shared API client. Requests are tagged with the
// application name, version and environment.
func NewClient(opts Options) *openai.Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.OrgID = opts.OrgID
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = &http.Client{
		Timeout: 60 * time.Second,
		Transport: headerTransport{
			base: http.DefaultTransport,
			headers: map[string]string{
				"X-App-Name":    "chatter-backend",
				"X-App-Version": orDefault(opts.AppVersion, "1.0.0"),
				"X-Environment": orDefault(opts.Env, "development"),
			},
		},
	}
	return openai.NewClientWithConfig(cfg)
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
