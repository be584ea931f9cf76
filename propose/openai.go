package propose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/patchprove/patchprove/patcherr"
)

// OpenAICompatibleProposer talks to any chat-completions endpoint that
// follows the OpenAI wire format — the hosted API, or a local inference
// server such as vLLM, llama.cpp, or LM Studio. It is the one component in
// this module built directly on net/http: no HTTP client library appears
// anywhere in the example pack, so the standard library is the only
// grounded option for outbound JSON-over-HTTPS. Grounded on
// openai_compatible.py's OpenAICompatiblePatchProposer.
type OpenAICompatibleProposer struct {
	APIKey        string
	BaseURL       string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	ProviderLabel string
	RequireAPIKey bool

	httpClient *http.Client
}

// NewOpenAICompatibleProposer validates require_api_key and returns a
// proposer ready to call Propose.
func NewOpenAICompatibleProposer(apiKey, baseURL, model string, temperature float64, maxTokens int, timeout time.Duration, requireAPIKey bool, providerLabel string) (*OpenAICompatibleProposer, error) {
	if requireAPIKey && apiKey == "" {
		return nil, patcherr.New(patcherr.ProviderError, "configure",
			fmt.Errorf("%s provider requires API key configuration for authenticated access", providerLabel))
	}
	return &OpenAICompatibleProposer{
		APIKey:        apiKey,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Model:         model,
		Temperature:   temperature,
		MaxTokens:     maxTokens,
		Timeout:       timeout,
		ProviderLabel: providerLabel,
		RequireAPIKey: requireAPIKey,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type proposalJSON struct {
	Diff       string   `json:"diff"`
	Rationale  string   `json:"rationale"`
	RiskNotes  string   `json:"risk_notes"`
	Confidence *float64 `json:"confidence"`
}

func (p *OpenAICompatibleProposer) Propose(ctx context.Context, input Input) (Output, error) {
	prompt := buildPrompt(input)

	reqBody := chatRequest{
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: "Generate minimal unified diff patches with strict JSON output."},
			{Role: "user", Content: prompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Output{}, patcherr.New(patcherr.ProviderError, "propose", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Output{}, patcherr.New(patcherr.ProviderError, "propose", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Output{}, patcherr.New(patcherr.ProviderError, "propose", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{}, patcherr.New(patcherr.ProviderError, "propose", err)
	}
	if resp.StatusCode >= 400 {
		return Output{}, patcherr.New(patcherr.ProviderError, "propose", fmt.Errorf("%s provider returned HTTP %d: %s", p.ProviderLabel, resp.StatusCode, string(raw)))
	}

	var parsedResp chatResponse
	if err := json.Unmarshal(raw, &parsedResp); err != nil {
		return Output{}, patcherr.New(patcherr.ProviderError, "propose", fmt.Errorf("decoding %s response: %w", p.ProviderLabel, err))
	}
	if len(parsedResp.Choices) == 0 {
		return Output{}, patcherr.New(patcherr.ProviderError, "propose", fmt.Errorf("%s response contained no choices", p.ProviderLabel))
	}
	content := parsedResp.Choices[0].Message.Content

	parsed, err := extractJSON(content)
	if err != nil {
		return Output{}, patcherr.New(patcherr.ProviderError, "propose", err)
	}

	return Output{
		Diff:        parsed.Diff,
		Rationale:   parsed.Rationale,
		RiskNotes:   parsed.RiskNotes,
		Confidence:  parsed.Confidence,
		RawResponse: content,
	}, nil
}

var (
	fencePrefixRE = regexp.MustCompile("^```[a-zA-Z0-9_-]*\n")
	fenceSuffixRE = regexp.MustCompile("\n```$")
	jsonBlockRE   = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON tolerates markdown code fences around the JSON object and
// falls back to scanning for the first balanced-looking {...} block if the
// whole response isn't valid JSON on its own. Grounded on
// OpenAICompatiblePatchProposer._extract_json.
func extractJSON(content string) (proposalJSON, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = fencePrefixRE.ReplaceAllString(text, "")
		text = fenceSuffixRE.ReplaceAllString(text, "")
	}

	var parsed proposalJSON
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, nil
	}

	match := jsonBlockRE.FindString(text)
	if match == "" {
		return proposalJSON{}, fmt.Errorf("model did not return a JSON object")
	}
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return proposalJSON{}, fmt.Errorf("invalid JSON response: %w", err)
	}
	return parsed, nil
}

// buildPrompt renders the strict-JSON-diff instruction prompt, truncating
// the failure output and context snippets the same way
// OpenAICompatiblePatchProposer._build_prompt does, to bound prompt size.
func buildPrompt(input Input) string {
	var snippetParts []string
	for key, snippet := range input.Context.Snippets {
		if snippet != "" {
			snippetParts = append(snippetParts, "### "+key+"\n"+snippet)
		}
	}
	snippetsBlock := truncate(strings.Join(snippetParts, "\n\n"), 20000)

	assertions := bulletList(input.Context.FailingAssertions)
	prev := bulletList(lastN(input.PreviousAttempts, 3))
	allow := bulletList(input.WriteAllowlist)
	deny := bulletList(input.DenyWrite)

	var b strings.Builder
	b.WriteString("You are the patchprove patch proposer.\n")
	b.WriteString("Return STRICT JSON object with keys: diff, rationale, risk_notes, confidence.\n")
	b.WriteString("Rules:\n")
	b.WriteString("1) diff must be valid unified diff and only include files in allowlist.\n")
	b.WriteString("2) include file headers for every changed file: '--- a/<path>' and '+++ b/<path>'.\n")
	b.WriteString("3) never return hunk-only patches (starting with '@@').\n")
	b.WriteString("4) minimize changes; avoid refactors.\n")
	b.WriteString("5) do not propose dependency or lockfile changes unless explicitly required.\n")
	b.WriteString("6) if no safe fix is possible, set diff to empty string and explain.\n\n")
	fmt.Fprintf(&b, "Failing command: %s\n", input.Command)
	fmt.Fprintf(&b, "Allowlist:\n%s\n", orNone(allow))
	fmt.Fprintf(&b, "Denylist:\n%s\n", orNone(deny))
	fmt.Fprintf(&b, "Recent attempt errors:\n%s\n", orNone(prev))
	fmt.Fprintf(&b, "Failing assertions:\n%s\n\n", orNone(assertions))
	fmt.Fprintf(&b, "Failure output:\n%s\n\n", truncate(input.FailureOutput, 12000))
	fmt.Fprintf(&b, "Context snippets:\n%s\n", snippetsBlock)
	fmt.Fprintf(&b, "Editable file snapshots:\n%s\n", orNone(editableFilesBlock(input.EditableFiles)))
	return b.String()
}

// editableFilesBlock renders the proposer's editable-file snapshots in
// stable, sorted-by-path order so the prompt doesn't jitter between calls.
func editableFilesBlock(files map[string]string) string {
	if len(files) == 0 {
		return ""
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	parts := make([]string, len(paths))
	for i, p := range paths {
		parts[i] = "### " + p + "\n" + truncate(files[p], 4000)
	}
	return strings.Join(parts, "\n\n")
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s == "" {
		return "- (none)"
	}
	return s
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
