package port

import "context"

// BotAPI delivers messages to end users on the messaging platform.
// Implementations handle token refresh on auth expiry and bounded backoff
// on rate limiting internally.
type BotAPI interface {
	SendText(ctx context.Context, userID, text string) error
}

// Assistant is the generative-language black box used around the agent call.
// All three operations are text in, text out.
type Assistant interface {
	// Summarize condenses the user message and folds an industry
	// classification into the result.
	Summarize(ctx context.Context, text string) (string, error)

	// Compose builds the user-facing reply from the agent's answer and the
	// original user text. Organization names present in the agent reply are
	// surfaced verbatim and never invented.
	Compose(ctx context.Context, agentReply, userText string) (string, error)

	// Reply generates a direct answer to the user text, used as fallback
	// when the agent backend is unavailable.
	Reply(ctx context.Context, userText string) (string, error)
}
