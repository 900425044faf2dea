package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"product-promo-pipeline/chain"
	"product-promo-pipeline/config"
	"product-promo-pipeline/media/mediatest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var quiet = zerolog.New(io.Discard)

func TestHuggingFace_WarmupThenAudio(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/facebook/mms-tts-eng", r.URL.Path)
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"Model is currently loading"}`))
			return
		}
		w.Write(bytes.Repeat([]byte{1}, 4096))
	}))
	defer srv.Close()

	hf := NewHuggingFace(srv.Client(), "key", "facebook/mms-tts-eng", 503)
	hf.base = srv.URL + "/"
	c := chain.New[Request, string]("narration", []Provider{hf}, chain.Options{
		Logger: quiet,
		Retry:  chain.RetryPolicy{MaxRetries: 2, Delay: time.Millisecond},
	})

	dir := t.TempDir()
	res, err := c.Resolve(context.Background(), Request{Text: "hello", Dir: dir})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "narration.flac"), res.Value)
	require.Equal(t, 2, res.Attempts)
	fi, err := os.Stat(res.Value)
	require.NoError(t, err)
	require.EqualValues(t, 4096, fi.Size())
}

func TestHuggingFace_TinyBodyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	hf := NewHuggingFace(srv.Client(), "key", "m", 503)
	hf.base = srv.URL + "/"
	_, err := hf.Resolve(context.Background(), Request{Text: "hello", Dir: t.TempDir()})
	require.Error(t, err)
}

func TestCommand_RunsScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "tts.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n# --text T --output P\necho \"$2\" > \"$4\"\n"), 0755))

	c := NewCommand(config.AudioConfig{Command: script, CommandRetries: 1}, quiet)
	out, err := c.Resolve(context.Background(), Request{Text: "spoken words", Dir: dir})
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "spoken words\n", string(data))
}

func TestCommand_MissingBinary(t *testing.T) {
	c := NewCommand(config.AudioConfig{Command: "/does/not/exist-tts", CommandRetries: 3}, quiet)
	_, err := c.Resolve(context.Background(), Request{Text: "x", Dir: t.TempDir()})
	require.ErrorContains(t, err, "not available")
}

type fileProvider struct{}

func (fileProvider) Name() string { return "file" }

func (fileProvider) Resolve(_ context.Context, r Request) (string, error) {
	p := outPath(r.Dir, ".mp3")
	return p, os.WriteFile(p, []byte("audio"), 0644)
}

func TestGenerator_Run(t *testing.T) {
	dir := t.TempDir()
	probe := &mediatest.Prober{}
	probe.Set(filepath.Join(dir, "narration.mp3"), 62.0)
	c := chain.New[Request, string]("narration", []Provider{fileProvider{}}, chain.Options{Logger: quiet})

	asset, err := New(c, probe, quiet).Run(context.Background(), "Some narration.", dir)
	require.NoError(t, err)
	require.Equal(t, "file", asset.Provider)
	require.InDelta(t, 62.0, asset.DurationSec, 1e-9)
}

func TestGenerator_ProbeFailureLeavesZeroDuration(t *testing.T) {
	probe := &mediatest.Prober{Err: errors.New("ffprobe missing")}
	c := chain.New[Request, string]("narration", []Provider{fileProvider{}}, chain.Options{Logger: quiet})

	asset, err := New(c, probe, quiet).Run(context.Background(), "Some narration.", t.TempDir())
	require.NoError(t, err)
	require.Zero(t, asset.DurationSec)
}

func TestGenerator_EmptyText(t *testing.T) {
	c := chain.New[Request, string]("narration", []Provider{fileProvider{}}, chain.Options{Logger: quiet})
	_, err := New(c, &mediatest.Prober{}, quiet).Run(context.Background(), "  ", t.TempDir())
	require.Error(t, err)
}
