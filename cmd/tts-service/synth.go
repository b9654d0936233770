package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/jobs"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const outputFileMode = 0o644

var errNoText = errors.New("either --text or --text-file is required")

type synthOptions struct {
	text         string
	textFile     string
	language     string
	preset       string
	seed         int64
	exaggeration float64
	cfgWeight    float64
	reference    string
	out          string
}

func newSynthCommand() *cobra.Command {
	opts := synthOptions{}

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize one text to a WAV file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSynth(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.text, "text", "", "text to synthesize")
	flags.StringVar(&opts.textFile, "text-file", "", "read the text from this file")
	flags.StringVar(&opts.language, "language", "", "language code or \"auto\" (default: configured language)")
	flags.StringVar(&opts.preset, "preset", "", "voice preset id")
	flags.Int64Var(&opts.seed, "seed", core.RandomSeed, "base seed, -1 for random")
	flags.Float64Var(&opts.exaggeration, "exaggeration", core.DefaultExaggeration, "emotion exaggeration")
	flags.Float64Var(&opts.cfgWeight, "cfg-weight", core.DefaultCFGWeight, "classifier-free guidance weight")
	flags.StringVar(&opts.reference, "reference", "", "reference audio file for voice cloning")
	flags.StringVarP(&opts.out, "out", "o", "", "output path (default: generated file name)")

	return cmd
}

func (o synthOptions) params() (core.GenerationParameters, error) {
	text := o.text

	if o.textFile != "" {
		data, err := os.ReadFile(o.textFile)
		if err != nil {
			return core.GenerationParameters{}, fmt.Errorf("failed to read text file %s: %w", o.textFile, err)
		}

		text = string(data)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return core.GenerationParameters{}, errNoText
	}

	params := core.NewGenerationParameters(text)
	params.Language = o.language
	params.Preset = o.preset
	params.Exaggeration = o.exaggeration
	params.CFGWeight = o.cfgWeight
	params.Seed = o.seed
	params.ReferenceAudioPath = o.reference

	if params.Seed < 0 {
		params.Seed = core.RandomSeed
	}

	return params, nil
}

func runSynth(cmd *cobra.Command, opts synthOptions) error {
	params, err := opts.params()
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLogger(log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	built, err := buildApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		shutdownErr := built.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			log.Warn("Shutdown: %v", shutdownErr)
		}
	}()

	submitted, err := built.service.Submit(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}

	status, err := built.service.Wait(ctx, submitted.JobID)
	if err != nil {
		return fmt.Errorf("failed waiting for job %s: %w", submitted.JobID, err)
	}

	if status.Status != jobs.StatusCompleted {
		return fmt.Errorf("job %s %s: %s", status.JobID, status.Status, status.Error)
	}

	artifact, err := built.service.Download(ctx, submitted.JobID)
	if err != nil {
		return fmt.Errorf("failed to download result: %w", err)
	}

	out := opts.out
	if out == "" {
		out = filepath.Base(artifact.Filename)
	}

	err = os.WriteFile(out, artifact.Data, outputFileMode)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	cmd.Printf("Wrote %s (%s)\n", out, humanize.Bytes(uint64(len(artifact.Data))))

	return nil
}
