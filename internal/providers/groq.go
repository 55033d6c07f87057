package providers

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	DefaultGroqModel = "llama-3.1-8b-instant"
)

// NewGroqProvider builds a chat-only provider against Groq's
// OpenAI-compatible endpoint.
func NewGroqProvider(apiKey, model string) (*OpenAIProvider, error) {
	return NewOpenAIProvider(OpenAIOptions{
		Name:      "groq",
		APIKey:    apiKey,
		BaseURL:   groqBaseURL,
		ChatModel: nameOr(model, DefaultGroqModel),
	})
}
