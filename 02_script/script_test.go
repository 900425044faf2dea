package script

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"product-promo-pipeline/chain"
	"product-promo-pipeline/config"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newGroqServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req groqRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
}

func TestGroq_Resolve(t *testing.T) {
	srv := newGroqServer(t, http.StatusOK, "So I've been using this lamp. It's great.")
	defer srv.Close()

	g := NewGroq(srv.Client(), "test-key", config.Default().Script)
	g.endpoint = srv.URL

	out, err := g.Resolve(context.Background(), Brief{Product: "Desk Lamp"})
	require.NoError(t, err)
	require.Equal(t, "So I've been using this lamp. It's great.", out)
}

func TestGroq_ServerErrorIsStatusError(t *testing.T) {
	srv := newGroqServer(t, http.StatusTooManyRequests, "")
	defer srv.Close()

	g := NewGroq(srv.Client(), "test-key", config.Default().Script)
	g.endpoint = srv.URL

	_, err := g.Resolve(context.Background(), Brief{Product: "Desk Lamp"})
	var status *chain.StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, http.StatusTooManyRequests, status.Status)
}

func TestGroqKeywords(t *testing.T) {
	srv := newGroqServer(t, http.StatusOK, "durable, bright,  dimmable,\n- energy efficient, bright")
	defer srv.Close()

	g := NewGroq(srv.Client(), "test-key", config.Default().Script)
	g.endpoint = srv.URL

	kws, err := GroqKeywords{g}.Resolve(context.Background(), Brief{Product: "Desk Lamp"})
	require.NoError(t, err)
	require.Equal(t, []string{"durable", "bright", "dimmable", "energy efficient"}, kws)
}

func TestTemplate_NeverFails(t *testing.T) {
	out, err := Template{}.Resolve(context.Background(), Brief{
		Product:  "Gaming Mouse",
		Keywords: []string{"Wireless", "Gaming", "Ergonomic", "RGB"},
		Data:     &types.ProductData{Price: "$49"},
	})
	require.NoError(t, err)
	require.Contains(t, out, "Gaming Mouse")
	require.Contains(t, out, "Wireless, Gaming and Ergonomic")
	require.Contains(t, out, "Performance is where it really shines")
	require.Contains(t, out, "For $49")

	out, err = Template{}.Resolve(context.Background(), Brief{})
	require.NoError(t, err)
	require.Contains(t, out, "this product")
}

func TestSearchKeywords(t *testing.T) {
	got := SearchKeywords("This wireless keyboard has great Performance and RGB lights", []string{"Keyboard", "clicky"}, 5)
	require.Equal(t, []string{"Keyboard", "clicky", "rgb", "wireless", "performance"}, got)
}

func TestFeatureKeywords(t *testing.T) {
	kws, err := FeatureKeywords{}.Resolve(context.Background(), Brief{Data: &types.ProductData{
		Features: []string{"Noise cancelling", "Long battery", "USB"},
	}})
	require.NoError(t, err)
	require.Equal(t, []string{"noise", "cancelling", "battery"}, kws)
}

func TestCleanText(t *testing.T) {
	in := "```\n[Hook]\n**So** I've been using this.\n\n[Outro]\nBuy it.\n```"
	require.Equal(t, "So I've been using this. Buy it.", cleanText(in))
}

func TestWriter_FallsBackToTemplate(t *testing.T) {
	logger := zerolog.New(io.Discard)
	broken := chain.Func[Brief, string]{ID: "groq", Fn: func(context.Context, Brief) (string, error) {
		return "", errors.New("groq down")
	}}
	content := chain.New[Brief, string]("content", []ContentProvider{broken, Template{}}, chain.Options{Logger: logger})
	keywords := chain.New[Brief, []string]("keywords", []KeywordProvider{FeatureKeywords{}}, chain.Options{Logger: logger})

	w := New(content, keywords, config.Default().Script, logger)
	s, err := w.Run(context.Background(), Brief{
		Product:  "Studio Headset",
		Keywords: []string{"audio"},
		Data:     &types.ProductData{Features: []string{"Wireless"}},
	})
	require.NoError(t, err)
	require.Equal(t, "template", s.Provider)
	require.True(t, strings.HasPrefix(s.Content, "So I've been using the Studio Headset"))
	require.Contains(t, s.Keywords, "audio")
	require.Contains(t, s.Keywords, "Wireless")
}

func TestWriter_ContentExhaustionIsReturned(t *testing.T) {
	logger := zerolog.New(io.Discard)
	broken := chain.Func[Brief, string]{ID: "groq", Fn: func(context.Context, Brief) (string, error) {
		return "", errors.New("groq down")
	}}
	content := chain.New[Brief, string]("content", []ContentProvider{broken}, chain.Options{Logger: logger})

	_, err := New(content, nil, config.Default().Script, logger).Run(context.Background(), Brief{Product: "x"})
	var exhausted *chain.AllProvidersExhausted
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, "groq", exhausted.Provider)
}
