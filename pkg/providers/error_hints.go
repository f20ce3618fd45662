package providers

import "strings"

func augmentProviderError(providerName, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	providerName = NormalizeProviderName(providerName)

	switch providerName {
	case ProviderOpenRouter:
		if strings.Contains(lower, "no auth credentials found") ||
			strings.Contains(lower, "invalid api key") {
			return msg + " Hint: set providers.openrouter.api_key in the config file or export DIETBUDDY_PROVIDERS_OPENROUTER_API_KEY."
		}
		if strings.Contains(lower, "insufficient credits") {
			return msg + " Hint: the OpenRouter account is out of credits; top up at https://openrouter.ai/credits."
		}
	case ProviderOpenAI:
		if strings.Contains(lower, "incorrect api key provided") {
			return msg + " Hint: provider openai expects a Platform API key. Check providers.openai.api_key or DIETBUDDY_PROVIDERS_OPENAI_API_KEY."
		}
		if strings.Contains(lower, "exceeded your current quota") {
			return msg + " Hint: the OpenAI project has no remaining quota; review billing for the key in use."
		}
	}

	return msg
}
