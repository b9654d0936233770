// Command go-client submits text to a running tts-service over its HTTP API and saves the
// resulting WAV file.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// Flag descriptions.
const (
	flagServerDesc   = "Base URL of the tts-service HTTP API"
	flagTextDesc     = "Text to convert to speech"
	flagTextFileDesc = "File containing the text to convert"
	flagOutputDesc   = "Output file path (.wav)"
	flagLanguageDesc = "Language code or \"auto\""
	flagPresetDesc   = "Voice preset id"
	flagSeedDesc     = "Base seed, -1 for random"
	flagHealthDesc   = "Check service health and exit"
	flagPollDesc     = "Status polling interval"
	flagTimeoutDesc  = "Give up after this long"
)

// Flag names.
const (
	flagServer   = "server"
	flagText     = "text"
	flagTextFile = "text-file"
	flagOutput   = "output"
	flagLanguage = "language"
	flagPreset   = "preset"
	flagSeed     = "seed"
	flagHealth   = "health"
	flagPoll     = "poll"
	flagTimeout  = "timeout"
)

// Defaults.
const (
	defaultServer     = "http://localhost:8080"
	defaultPoll       = time.Second
	defaultTimeout    = 10 * time.Minute
	outputFileMode    = 0o644
	maxErrorBodyBytes = 4096
)

// Job states reported by the service.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

var (
	errEitherTextOrFile  = errors.New("either --text or --text-file must be provided")
	errCannotSpecifyBoth = errors.New("cannot specify both --text and --text-file")
	errJobFailed         = errors.New("job failed")
	errUnexpectedStatus  = errors.New("unexpected response status")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	server   string
	text     string
	textFile string
	output   string
	language string
	preset   string
	seed     int64
	health   bool
	poll     time.Duration
	timeout  time.Duration
}

type submitRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Preset   string `json:"preset,omitempty"`
	Seed     int64  `json:"seed"`
}

type jobStatus struct {
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error"`
}

// client talks to the job API.
type client struct {
	baseURL string
	http    *http.Client
	poll    time.Duration
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	api := newClient(flags.server, flags.poll)

	if flags.health {
		body, healthErr := api.health(ctx)
		if healthErr != nil {
			return healthErr
		}

		fmt.Fprintln(stdout, strings.TrimSpace(string(body)))

		return nil
	}

	text, err := flags.resolveText()
	if err != nil {
		return err
	}

	output := flags.output
	if output == "" {
		output = "output.wav"
	}

	status, err := api.synthesize(ctx, submitRequest{
		Text:     text,
		Language: flags.language,
		Preset:   flags.preset,
		Seed:     flags.seed,
	}, output)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Job %s completed: %s\n", status.JobID, output)

	return nil
}

// parseFlags parses args into appFlags.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	set := flag.NewFlagSet("go-client", flag.ContinueOnError)
	set.StringVar(&flags.server, flagServer, defaultServer, flagServerDesc)
	set.StringVar(&flags.text, flagText, "", flagTextDesc)
	set.StringVar(&flags.textFile, flagTextFile, "", flagTextFileDesc)
	set.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	set.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	set.StringVar(&flags.preset, flagPreset, "", flagPresetDesc)
	set.Int64Var(&flags.seed, flagSeed, -1, flagSeedDesc)
	set.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	set.DurationVar(&flags.poll, flagPoll, defaultPoll, flagPollDesc)
	set.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)

	err := set.Parse(args)
	if err != nil {
		return flags, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// resolveText returns the text from --text or --text-file.
func (f appFlags) resolveText() (string, error) {
	if f.text != "" && f.textFile != "" {
		return "", errCannotSpecifyBoth
	}

	if f.textFile != "" {
		data, err := os.ReadFile(f.textFile)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", f.textFile, err)
		}

		return string(data), nil
	}

	if strings.TrimSpace(f.text) == "" {
		return "", errEitherTextOrFile
	}

	return f.text, nil
}

func newClient(baseURL string, poll time.Duration) *client {
	if poll <= 0 {
		poll = defaultPoll
	}

	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		poll:    poll,
	}
}

// synthesize submits a job, polls it to a terminal state and writes the audio to output.
func (c *client) synthesize(ctx context.Context, req submitRequest, output string) (jobStatus, error) {
	submitted, err := c.submit(ctx, req)
	if err != nil {
		return jobStatus{}, err
	}

	status, err := c.waitFor(ctx, submitted.JobID)
	if err != nil {
		return status, err
	}

	audio, err := c.download(ctx, status.JobID)
	if err != nil {
		return status, err
	}

	err = os.WriteFile(output, audio, outputFileMode)
	if err != nil {
		return status, fmt.Errorf("failed to write %s: %w", output, err)
	}

	return status, nil
}

func (c *client) submit(ctx context.Context, req submitRequest) (jobStatus, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return jobStatus{}, fmt.Errorf("failed to encode request: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/jobs", bytes.NewReader(body), http.StatusAccepted)
	if err != nil {
		return jobStatus{}, err
	}

	return decodeStatus(data)
}

func (c *client) status(ctx context.Context, id string) (jobStatus, error) {
	data, err := c.do(ctx, http.MethodGet, "/jobs/"+id, nil, http.StatusOK)
	if err != nil {
		return jobStatus{}, err
	}

	return decodeStatus(data)
}

// waitFor polls the job until it completes or fails.
func (c *client) waitFor(ctx context.Context, id string) (jobStatus, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		status, err := c.status(ctx, id)
		if err != nil {
			return status, err
		}

		switch status.Status {
		case statusCompleted:
			return status, nil
		case statusFailed:
			return status, fmt.Errorf("%w: %s: %s", errJobFailed, id, status.Error)
		}

		select {
		case <-ctx.Done():
			return status, fmt.Errorf("gave up waiting for job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *client) download(ctx context.Context, id string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/jobs/"+id+"/download", nil, http.StatusOK)
}

func (c *client) health(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK)
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader, want int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return nil, fmt.Errorf("%w: %s %s returned %d: %s", errUnexpectedStatus, method, path,
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s %s: %w", method, path, err)
	}

	return data, nil
}

func decodeStatus(data []byte) (jobStatus, error) {
	var status jobStatus

	err := json.Unmarshal(data, &status)
	if err != nil {
		return status, fmt.Errorf("failed to decode job status: %w", err)
	}

	return status, nil
}
