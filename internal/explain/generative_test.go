package explain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	text   string
	err    error
	system string
	user   string
}

func (g *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	g.system, g.user = system, user
	return g.text, g.err
}

func TestGenerativeBackend(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		gen := &fakeGenerator{text: "- The amount was far above your usual spending."}
		b := NewGenerativeBackend(gen)

		req := baseRequest()
		req.IsFraud = true
		req.RiskScore = 0.91
		req.Language = domain.LanguageMarathi

		text, err := b.Explain(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, gen.text, text)
		assert.Contains(t, gen.system, "Answer in Marathi.")
		assert.Contains(t, gen.system, "at most 5")
		assert.Contains(t, gen.user, "Verdict: fraudulent")
		assert.Contains(t, gen.user, "Risk score: 91.0%")
		assert.Contains(t, gen.user, "Amount: 1000.00")
	})

	t.Run("UnsupportedLanguage", func(t *testing.T) {
		gen := &fakeGenerator{text: "ok"}
		req := baseRequest()
		req.Language = "de"
		_, err := NewGenerativeBackend(gen).Explain(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, gen.system, "Answer in English.")
	})

	t.Run("GeneratorError", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("model crashed")}
		text, err := NewGenerativeBackend(gen).Explain(context.Background(), baseRequest())
		require.NoError(t, err)
		assert.Equal(t, GenerationFallback, text)
	})

	t.Run("EmptyOutput", func(t *testing.T) {
		gen := &fakeGenerator{text: ""}
		text, err := NewGenerativeBackend(gen).Explain(context.Background(), baseRequest())
		require.NoError(t, err)
		assert.Equal(t, GenerationFallback, text)
	})
}

func TestContinuation(t *testing.T) {
	prompt := ChatMLPrompt("sys", "user")

	assert.Equal(t, "answer", Continuation(prompt, prompt+"answer<|im_end|>\n<|im_start|>user\nmore"))
	assert.Equal(t, "answer", Continuation(prompt, "  answer  "))
	assert.Equal(t, "", Continuation(prompt, prompt))
}

func TestChatMLPrompt(t *testing.T) {
	p := ChatMLPrompt("be brief", "why?")
	assert.Equal(t,
		"<|im_start|>system\nbe brief<|im_end|>\n<|im_start|>user\nwhy?<|im_end|>\n<|im_start|>assistant\n",
		p)
}

func TestTGIClient(t *testing.T) {
	t.Run("ObjectResponse", func(t *testing.T) {
		var got tgiRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/generate", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(map[string]string{"generated_text": "- Looks normal.<|im_end|>"})
		}))
		defer server.Close()

		c := NewTGIClient(domain.GeneratorConfig{URL: server.URL + "/", APIKey: "secret", Temperature: 0.3})
		text, err := c.Generate(context.Background(), "sys", "usr")
		require.NoError(t, err)
		assert.Equal(t, "- Looks normal.", text)
		assert.Equal(t, 150, got.Parameters.MaxNewTokens)
		assert.InDelta(t, 0.3, got.Parameters.Temperature, 1e-9)
		assert.True(t, got.Parameters.DoSample)
		assert.False(t, got.Parameters.ReturnFullText)
		assert.Equal(t, ChatMLPrompt("sys", "usr"), got.Inputs)
	})

	t.Run("ListResponseWithEcho", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req tgiRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode([]map[string]string{{"generated_text": req.Inputs + "Echoed answer"}})
		}))
		defer server.Close()

		c := NewTGIClient(domain.GeneratorConfig{URL: server.URL})
		text, err := c.Generate(context.Background(), "sys", "usr")
		require.NoError(t, err)
		assert.Equal(t, "Echoed answer", text)
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"model is loading"}`))
		}))
		defer server.Close()

		c := NewTGIClient(domain.GeneratorConfig{URL: server.URL})
		_, err := c.Generate(context.Background(), "sys", "usr")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model is loading")
	})
}
