package chain

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	name  string
	calls int
	errs  []error
	value string
}

func (p *countingProvider) Name() string { return p.name }

func (p *countingProvider) Resolve(ctx context.Context, req string) (string, error) {
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return "", err
	}
	return p.value + req, nil
}

func opts() Options {
	return Options{Logger: zerolog.New(io.Discard), Registry: NewRegistry()}
}

func TestResolve_FirstSuccessWins(t *testing.T) {
	a := &countingProvider{name: "a", errs: []error{errors.New("boom")}}
	b := &countingProvider{name: "b", value: "b:"}
	c := &countingProvider{name: "c", value: "c:"}
	o := opts()
	ch := New[string, string]("image", []Provider[string, string]{a, b, c}, o)

	res, err := ch.Resolve(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "b:x", res.Value)
	require.Equal(t, "b", res.Provider)
	require.Equal(t, 2, res.Attempts)
	require.Zero(t, c.calls)

	last, ok := o.Registry.Last("image")
	require.True(t, ok)
	require.Equal(t, "b", last)
}

func TestResolve_ExhaustedAfterExactlyKAttempts(t *testing.T) {
	var providers []Provider[string, string]
	var all []*countingProvider
	for _, n := range []string{"p1", "p2", "p3", "p4"} {
		p := &countingProvider{name: n, errs: []error{errors.New(n + " down")}}
		all = append(all, p)
		providers = append(providers, p)
	}
	ch := New[string, string]("stock_clip", providers, opts())

	_, err := ch.Resolve(context.Background(), "q")
	var exhausted *AllProvidersExhausted
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, "stock_clip", exhausted.Capability)
	require.Equal(t, "p4", exhausted.Provider)
	require.Equal(t, 4, exhausted.Attempts)
	require.ErrorContains(t, err, "p4 down")
	for _, p := range all {
		require.Equal(t, 1, p.calls)
	}
}

func TestResolve_EmptyChain(t *testing.T) {
	ch := New[string, string]("content", nil, opts())
	_, err := ch.Resolve(context.Background(), "q")
	require.ErrorIs(t, err, ErrNoProviders)
}

func TestResolve_RetriesInitializingProvider(t *testing.T) {
	hf := &countingProvider{name: "huggingface", value: "hf:", errs: []error{
		&Initializing{Provider: "huggingface"},
		&Initializing{Provider: "huggingface"},
	}}
	next := &countingProvider{name: "next", value: "n:"}
	o := opts()
	o.Retry = RetryPolicy{MaxRetries: 2, Delay: time.Millisecond}
	ch := New[string, string]("narration", []Provider[string, string]{hf, next}, o)

	res, err := ch.Resolve(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "huggingface", res.Provider)
	require.Equal(t, 3, hf.calls)
	require.Zero(t, next.calls)
}

func TestResolve_RetryIsBounded(t *testing.T) {
	hf := &countingProvider{name: "huggingface", errs: []error{
		&Initializing{}, &Initializing{}, &Initializing{}, &Initializing{},
	}}
	next := &countingProvider{name: "next", value: "n:"}
	o := opts()
	o.Retry = RetryPolicy{MaxRetries: 2, Delay: time.Millisecond}
	ch := New[string, string]("narration", []Provider[string, string]{hf, next}, o)

	res, err := ch.Resolve(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "next", res.Provider)
	require.Equal(t, 3, hf.calls)
	require.Equal(t, 4, res.Attempts)
}

func TestResolve_CancelledContextStops(t *testing.T) {
	a := &countingProvider{name: "a", value: "a:"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := New[string, string]("image", []Provider[string, string]{a}, opts())

	_, err := ch.Resolve(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, a.calls)
}

func TestResolve_AttemptTimeout(t *testing.T) {
	slow := Func[string, string]{ID: "slow", Fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	fast := Func[string, string]{ID: "fast", Fn: func(context.Context, string) (string, error) {
		return "ok", nil
	}}
	o := opts()
	o.AttemptTimeout = 10 * time.Millisecond
	ch := New[string, string]("content", []Provider[string, string]{slow, fast}, o)

	res, err := ch.Resolve(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "fast", res.Provider)
	require.Equal(t, []string{"slow", "fast"}, ch.Names())
}

func TestCheckStatus(t *testing.T) {
	require.NoError(t, CheckStatus("x", &http.Response{StatusCode: 200}, nil, 503))

	var warming *Initializing
	require.ErrorAs(t, CheckStatus("hf", &http.Response{StatusCode: 503}, nil, 503), &warming)

	var status *StatusError
	err := CheckStatus("pexels", &http.Response{StatusCode: 429}, []byte("slow down"), 503)
	require.ErrorAs(t, err, &status)
	require.Equal(t, 429, status.Status)
}
