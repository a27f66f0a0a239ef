package domain

// IndustryCategories is the fixed set of industry labels the summarizer
// classifies inbound messages into. The chosen label is folded into the
// summary text sent to the agent backend.
var IndustryCategories = []string{
	"IT・通信",
	"製造",
	"金融",
	"医療・福祉",
	"小売・流通",
	"建設・不動産",
	"教育",
	"飲食・サービス",
	"運輸・物流",
	"その他",
}

// FallbackReplyText is the static reply sent when neither the agent backend
// nor the generative assistant can produce a response.
const FallbackReplyText = "申し訳ありません、現在応答を生成できません。しばらくしてからもう一度お試しください。"

// DefaultTerminationPhrases end the conversation session when they appear in
// the user's message.
var DefaultTerminationPhrases = []string{"終了", "さようなら"}
