package tts

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

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	contentTypeXWAV   = "audio/x-wav"
)

// Error messages.
const (
	errTextCannotBeEmpty       = "text cannot be empty"
	errUnexpectedContentType   = "unexpected content type: expected audio/wav, got %s"
	errReceivedEmptyAudio      = "received empty audio data"
	errFmtServiceErrorWithCode = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "TTS service returned non-OK status: %s, body: %s"
)

// ErrServiceStatus is wrapped by every non-OK response from the speech service.
var ErrServiceStatus = errors.New("speech service returned an error status")

// HTTPClient represents a client for a standalone speech synthesis HTTP service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// TTSRequest defines the JSON payload for one synthesis call.
type TTSRequest struct {
	// Text contains the input text to convert to speech.
	Text string `json:"text"`

	// SpeakerRefPath optionally specifies a path to a speaker reference file for voice
	// cloning. The service must be able to read it.
	SpeakerRefPath string `json:"speaker_ref_path,omitempty"`

	// Language specifies the target language code (e.g., "tr", "en").
	Language string `json:"language"`

	// Exaggeration controls emotional intensity, 0.0 to 2.0.
	Exaggeration float64 `json:"exaggeration"`

	// CFGWeight controls how closely the output follows the text conditioning, 0.0 to 1.0.
	CFGWeight float64 `json:"cfg_weight"`

	// Seed makes the service's sampling reproducible.
	Seed int64 `json:"seed"`
}

// TTSErrorResponse represents a structured error response from the speech service.
type TTSErrorResponse struct {
	// Detail contains a human-readable error description.
	Detail string `json:"detail"`

	// ErrorCode provides a machine-readable error classification.
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates an HTTP client for the speech service. The baseURL should include
// the protocol and port (e.g., "http://localhost:8000"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GenerateSpeech sends a synthesis request and returns the raw WAV data.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req TTSRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New(errTextCannotBeEmpty)
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + apiGenerateSpeech

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !isWAVContentType(contentType) {
		return nil, fmt.Errorf(errUnexpectedContentType, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, errors.New(errReceivedEmptyAudio)
	}

	return audioData, nil
}

// HealthCheck verifies that the speech service is running and operational.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check failed with status: %s", ErrServiceStatus, resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error from the service, falling back to the
// raw body when the response is not JSON.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp TTSErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf("%w: "+errFmtServiceErrorWithCode,
			ErrServiceStatus, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf("%w: "+errFmtServiceNonOKStatus, ErrServiceStatus, resp.Status, string(body))
}

func isWAVContentType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))

	return mediaType == contentTypeWAV || mediaType == contentTypeXWAV
}
