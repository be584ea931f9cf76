package propose

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// New resolves a proposer by name, falling back to PP_PROVIDER and then
// "stub" when name is empty. Grounded on providers/__init__.py's
// create_provider, including its alias set for local inference servers.
func New(name string) (Proposer, error) {
	resolved := strings.ToLower(strings.TrimSpace(firstNonEmpty(name, os.Getenv("PP_PROVIDER"), "stub")))

	switch resolved {
	case "openai":
		return newOpenAIProposer()
	case "local", "local-openai", "vllm", "lmstudio":
		return NewLocalProposer()
	case "stub":
		return StubProposer{}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", resolved)
	}
}

// newOpenAIProposer builds the hosted-API proposer from PP_OPENAI_* (and
// OPENAI_API_KEY as a fallback credential), grounded on openai.py's
// OpenAIPatchProposer.
func newOpenAIProposer() (*OpenAICompatibleProposer, error) {
	apiKey := firstNonEmpty(os.Getenv("PP_OPENAI_API_KEY"), os.Getenv("OPENAI_API_KEY"))
	baseURL := firstNonEmpty(os.Getenv("PP_OPENAI_BASE_URL"), "https://api.openai.com/v1")
	model := firstNonEmpty(os.Getenv("PP_OPENAI_MODEL"), "gpt-4.1-mini")
	temperature := envFloat("PP_OPENAI_TEMPERATURE", 0)
	maxTokens := envInt("PP_OPENAI_MAX_TOKENS", 2000)
	timeoutSec := envInt("PP_OPENAI_TIMEOUT_SEC", 120)

	return NewOpenAICompatibleProposer(apiKey, baseURL, model, temperature, maxTokens, time.Duration(timeoutSec)*time.Second, true, "openai")
}
