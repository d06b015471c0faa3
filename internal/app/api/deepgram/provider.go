package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"ai-subtitler/internal/app/api/provider"
	"ai-subtitler/internal/app/common"
	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/subtitle"
)

// ProviderName identifies Deepgram in logs and metrics.
const ProviderName = "deepgram"

const maxErrorBody = 4 << 10

// Config represents configuration for the Deepgram provider
type Config struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	SmartFormat bool          `yaml:"smart_format"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Provider posts raw audio to the Deepgram listen endpoint and flattens the
// paragraph/sentence transcript into cues.
type Provider struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

type errorResponse struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// NewProvider creates a Deepgram provider, filling defaults for unset fields.
func NewProvider(config Config, logger *zap.Logger) *Provider {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.deepgram.com"
	}
	if config.Model == "" {
		config.Model = "whisper"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Minute
	}
	return &Provider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: common.OrNop(logger),
	}
}

func (p *Provider) Name() string {
	return ProviderName
}

// Transcribe streams audioPath to Deepgram and returns one cue per sentence.
func (p *Provider) Transcribe(ctx context.Context, audioPath, language string) ([]model.Cue, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, p.fail(0, fmt.Errorf("failed to open audio file: %w", err))
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.listenURL(language), file)
	if err != nil {
		return nil, p.fail(0, fmt.Errorf("failed to create request: %w", err))
	}
	if info, statErr := file.Stat(); statErr == nil {
		req.ContentLength = info.Size()
	}
	req.Header.Set("Authorization", "Token "+p.config.APIKey)
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, p.fail(resp.StatusCode, fmt.Errorf("deepgram API error: %s", errorMessage(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.fail(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	cues, err := subtitle.DecodeNested(body)
	if err != nil {
		return nil, p.fail(resp.StatusCode, err)
	}

	p.logger.Debug("deepgram transcription received",
		zap.String("model", p.config.Model),
		zap.String("language", language),
		zap.Int("cues", len(cues)))
	return cues, nil
}

func (p *Provider) listenURL(language string) string {
	q := url.Values{}
	q.Set("model", p.config.Model)
	q.Set("paragraphs", "true")
	q.Set("punctuate", "true")
	if p.config.SmartFormat {
		q.Set("smart_format", "true")
	}
	if language != "" {
		q.Set("language", language)
	}
	return strings.TrimRight(p.config.BaseURL, "/") + "/v1/listen?" + q.Encode()
}

func (p *Provider) fail(status int, cause error) *provider.ProviderError {
	return &provider.ProviderError{
		Provider:   ProviderName,
		StatusCode: status,
		Retryable:  status == 0 || status == http.StatusTooManyRequests || status >= 500,
		Cause:      cause,
	}
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.ErrMsg != "" {
		if er.ErrCode != "" {
			return er.ErrCode + ": " + er.ErrMsg
		}
		return er.ErrMsg
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}
