package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand()

	for _, name := range []string{"serve", "synth", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	cmd := newVersionCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tts-service "+Version+"\n", out.String())
}

func TestSynthOptions_Params(t *testing.T) {
	t.Parallel()

	textFile := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(textFile, []byte("  dosyadan metin \n"), 0o600))

	params, err := synthOptions{
		text:         "ignored",
		textFile:     textFile,
		language:     "tr",
		preset:       "calm",
		seed:         -5,
		exaggeration: 0.7,
		cfgWeight:    0.3,
	}.params()
	require.NoError(t, err)

	assert.Equal(t, "dosyadan metin", params.Text)
	assert.Equal(t, "tr", params.Language)
	assert.Equal(t, "calm", params.Preset)
	assert.Equal(t, int64(core.RandomSeed), params.Seed)
	assert.InDelta(t, 0.7, params.Exaggeration, 1e-9)
	assert.InDelta(t, 0.3, params.CFGWeight, 1e-9)
	assert.False(t, params.OwnsReferenceAudio)

	_, err = synthOptions{text: "   "}.params()
	require.ErrorIs(t, err, errNoText)

	_, err = synthOptions{textFile: filepath.Join(t.TempDir(), "missing.txt")}.params()
	require.Error(t, err)
}
