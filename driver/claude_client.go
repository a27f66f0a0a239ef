package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agent-relay/domain"
)

// DefaultClaudeBaseURL is the Anthropic API base.
const DefaultClaudeBaseURL = "https://api.anthropic.com"

const (
	claudeAPIVersion   = "2023-06-01"
	defaultClaudeModel = "claude-3-5-sonnet-20240620"
	claudeMaxTokens    = 1024
)

// advisorSystemPrompt drives direct fallback replies when the agent backend
// is unavailable.
const advisorSystemPrompt = `あなたは求職者のキャリア相談に乗るキャリアアドバイザーBotです。
親しみやすくプロフェッショナルなトーンで、分かりやすい言葉で応答してください。
職種・勤務地・年収・スキルなど、より良い提案につながる希望をヒアリングしてください。
不確かな情報は伝えず、「一般的には〜」のような表現を使ってください。
公開されていない企業の機密情報を要求・提供しないでください。`

// summarizeSystemPrompt condenses a user message and folds an industry
// classification into the summary.
const summarizeSystemPrompt = `ユーザーのメッセージを1〜2文に要約してください。
次の業界カテゴリのうち最も当てはまるものを1つ選び、要約文に含めてください:
%s
要約文のみを出力してください。`

// composeSystemPrompt turns the agent backend's answer into the user-facing
// reply. Organization names in the agent reply must appear verbatim and must
// never be invented.
const composeSystemPrompt = `エージェントの回答を基に、ユーザーへの返信文を作成してください。
エージェントの回答に具体的な企業名・組織名が含まれる場合は、その名称を一字一句そのまま返信に含めてください。
エージェントの回答に企業名がない場合は、決して企業名を作り出さないでください。
丁寧で親しみやすい日本語で返信してください。`

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContentBlock `json:"content"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClaudeClient is the generative-language black box: summarization, reply
// composition, and the direct fallback reply. Implements port.Assistant.
// With no API key configured every operation reports
// domain.ErrAssistantUnavailable and the orchestrator degrades.
type ClaudeClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClaudeClient creates a new assistant client.
func NewClaudeClient(apiKey, model, baseURL string, logger *slog.Logger) *ClaudeClient {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = defaultClaudeModel
	}
	if baseURL == "" {
		baseURL = DefaultClaudeBaseURL
	}

	return &ClaudeClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Summarize condenses the user message and folds in an industry category.
func (c *ClaudeClient) Summarize(ctx context.Context, text string) (string, error) {
	system := fmt.Sprintf(summarizeSystemPrompt, strings.Join(domain.IndustryCategories, "、"))
	return c.complete(ctx, system, text)
}

// Compose builds the user-facing reply from the agent answer and the
// original user text.
func (c *ClaudeClient) Compose(ctx context.Context, agentReply, userText string) (string, error) {
	prompt := fmt.Sprintf("エージェントの回答:\n%s\n\nユーザーの元のメッセージ:\n%s", agentReply, userText)
	return c.complete(ctx, composeSystemPrompt, prompt)
}

// Reply generates a direct answer used when the agent backend is down.
func (c *ClaudeClient) Reply(ctx context.Context, userText string) (string, error) {
	return c.complete(ctx, advisorSystemPrompt, userText)
}

func (c *ClaudeClient) complete(ctx context.Context, system, userText string) (string, error) {
	if c.apiKey == "" {
		return "", domain.ErrAssistantUnavailable
	}

	reqBody, err := json.Marshal(claudeRequest{
		Model:     c.model,
		MaxTokens: claudeMaxTokens,
		System:    system,
		Messages:  []claudeMessage{{Role: "user", Content: userText}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAssistantUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("assistant request failed",
			"status_code", resp.StatusCode,
			"response_body", string(body))
		return "", fmt.Errorf("%w: status %d", domain.ErrAssistantUnavailable, resp.StatusCode)
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	for _, block := range claudeResp.Content {
		if block.Type == "text" && block.Text != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("%w: no text block in response", domain.ErrMalformedResponse)
}
