package propose

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubProposerReturnsEmptyDiff(t *testing.T) {
	out, err := StubProposer{}.Propose(context.Background(), Input{})
	require.NoError(t, err)
	assert.Empty(t, out.Diff)
	assert.NotNil(t, out.Confidence)
	assert.Equal(t, 0.0, *out.Confidence)
}

func TestNewRegistryResolvesStubByDefault(t *testing.T) {
	t.Setenv("PP_PROVIDER", "")
	p, err := New("")
	require.NoError(t, err)
	_, ok := p.(StubProposer)
	assert.True(t, ok)
}

func TestNewRegistryRejectsUnknownProvider(t *testing.T) {
	_, err := New("not-a-real-provider")
	assert.Error(t, err)
}

func TestNewRegistryAcceptsLocalAliases(t *testing.T) {
	for _, alias := range []string{"local", "local-openai", "vllm", "lmstudio"} {
		p, err := New(alias)
		require.NoError(t, err)
		_, ok := p.(*OpenAICompatibleProposer)
		assert.True(t, ok)
	}
}

func TestOpenAICompatibleProposerCallsEndpointAndParsesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"diff":"--- a/x\n+++ b/x\n","rationale":"fix","risk_notes":"none","confidence":0.8}`}},
			},
		}
		body, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer server.Close()

	p, err := NewOpenAICompatibleProposer("test-key", server.URL, "test-model", 0, 100, 0, false, "test")
	require.NoError(t, err)

	out, err := p.Propose(context.Background(), Input{Command: "pytest"})
	require.NoError(t, err)
	assert.Contains(t, out.Diff, "--- a/x")
	assert.Equal(t, "fix", out.Rationale)
	require.NotNil(t, out.Confidence)
	assert.Equal(t, 0.8, *out.Confidence)
}

func TestOpenAICompatibleProposerTakesFencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "```json\n{\"diff\":\"\",\"rationale\":\"no fix\",\"risk_notes\":\"\",\"confidence\":0}\n```"}},
			},
		}
		body, _ := json.Marshal(resp)
		w.Write(body)
	}))
	defer server.Close()

	p, err := NewOpenAICompatibleProposer("", server.URL, "m", 0, 100, 0, false, "test")
	require.NoError(t, err)

	out, err := p.Propose(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, "no fix", out.Rationale)
}

func TestOpenAICompatibleProposerRequiresAPIKeyWhenMandated(t *testing.T) {
	_, err := NewOpenAICompatibleProposer("", "https://api.openai.com/v1", "m", 0, 100, 0, true, "openai")
	assert.Error(t, err)
}

func TestBuildPromptIncludesFailureOutputAndAllowlist(t *testing.T) {
	prompt := buildPrompt(Input{
		Command:        "go test ./...",
		FailureOutput:  "panic: boom",
		WriteAllowlist: []string{"internal/**"},
		DenyWrite:      []string{"go.sum"},
	})
	assert.Contains(t, prompt, "go test ./...")
	assert.Contains(t, prompt, "panic: boom")
	assert.Contains(t, prompt, "internal/**")
	assert.Contains(t, prompt, "go.sum")
}
