package engines

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/speaky-cli/speaky/internal/config"
	"github.com/speaky-cli/speaky/internal/tts"
	"github.com/speaky-cli/speaky/internal/ttypes"
)

// OpenAIEngine implements tts.Synthesizer using the OpenAI speech endpoint.
// The response body is handed to the caller as it arrives. Failed requests
// are never retried.
type OpenAIEngine struct {
	client *openai.Client
	logger *log.Logger
}

// OpenAIConfig holds configuration for the OpenAI engine.
type OpenAIConfig struct {
	// APIKey is required
	APIKey string

	// BaseURL overrides the API endpoint (optional)
	BaseURL string

	// Timeout bounds a whole request including the body (0 disables it)
	Timeout time.Duration

	// HTTPClient replaces the default client; Timeout is ignored when set
	HTTPClient *http.Client

	Logger *log.Logger
}

// OpenAIConfigFrom derives the engine configuration from settings.
func OpenAIConfigFrom(s *config.Settings) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  s.APIKey,
		BaseURL: s.BaseURL,
		Timeout: s.Timeout,
	}
}

// NewOpenAIEngine creates a new OpenAI speech engine.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, ttypes.ConfigError(ttypes.CodeMissingCredential, "OpenAI API key is required", nil)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	clientConfig.HTTPClient = httpClient

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

// Synthesize requests speech for req and returns the streamed audio body.
func (e *OpenAIEngine) Synthesize(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
	format := req.Format
	if format == "" {
		format = config.FormatMP3
	}

	e.logger.Debug("Requesting speech",
		"model", req.Model,
		"voice", req.Voice,
		"format", format,
		"textLength", len(req.Text))

	resp, err := e.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(req.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.Voice),
		Instructions:   req.Instructions,
		ResponseFormat: openai.SpeechResponseFormat(format),
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	return &streamBody{ctx: ctx, body: resp}, nil
}

// streamBody reports read failures as synthesis errors.
type streamBody struct {
	ctx  context.Context
	body io.ReadCloser
}

func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		if s.ctx.Err() == nil && !isContextError(err) {
			return n, ttypes.SynthesisError(ttypes.CodeTransientNetwork, "audio stream interrupted", err)
		}
		return n, classify(s.ctx, err)
	}
	return n, err
}

func (s *streamBody) Close() error {
	return s.body.Close()
}

// classify maps a client error onto the synthesis error taxonomy.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ttypes.SynthesisError(ttypes.CodeInterrupted, "synthesis canceled", err)
	}

	if status := statusCode(err); status != 0 {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return ttypes.SynthesisError(ttypes.CodeAuthentication, "the API rejected the credential", err)
		}
		e := ttypes.SynthesisError(ttypes.CodeService, fmt.Sprintf("speech request failed with status %d", status), err)
		e.StatusCode = status
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ttypes.SynthesisError(ttypes.CodeTransientNetwork, "speech request timed out", err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ttypes.SynthesisError(ttypes.CodeTransientNetwork, "unable to reach the speech service", err)
	}

	return ttypes.SynthesisError(ttypes.CodeService, "speech request failed", err)
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
