package propose

import (
	"os"
	"strconv"
	"time"
)

// NewLocalProposer builds an OpenAI-compatible proposer aimed at a local
// inference server (vLLM, llama.cpp, LM Studio), reading its configuration
// from PP_LOCAL_* environment variables. An API key is optional, since
// most local servers don't enforce one. Grounded on local.py's
// LocalPatchProposer.
func NewLocalProposer() (*OpenAICompatibleProposer, error) {
	apiKey := firstNonEmpty(os.Getenv("PP_LOCAL_API_KEY"), os.Getenv("PP_OPENAI_API_KEY"))
	baseURL := firstNonEmpty(os.Getenv("PP_LOCAL_BASE_URL"), "http://127.0.0.1:8000/v1")
	model := firstNonEmpty(os.Getenv("PP_LOCAL_MODEL"), "Qwen/Qwen2.5-Coder-7B-Instruct")
	temperature := envFloat("PP_LOCAL_TEMPERATURE", 0)
	maxTokens := envInt("PP_LOCAL_MAX_TOKENS", 2000)
	timeoutSec := envInt("PP_LOCAL_TIMEOUT_SEC", 240)

	return NewOpenAICompatibleProposer(apiKey, baseURL, model, temperature, maxTokens, time.Duration(timeoutSec)*time.Second, false, "local")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
