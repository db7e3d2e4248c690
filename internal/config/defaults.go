package config

const (
	defaultConfigPath            = "~/.config/loreweave/config.toml"
	defaultDataDir               = "~/.local/share/loreweave"
	defaultLogDir                = "~/.local/share/loreweave/logs"
	defaultAPIBind               = "127.0.0.1:7493"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLLMProvider           = ProviderOpenRouter
	defaultOpenRouterBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenAIBaseURL         = "https://api.openai.com/v1"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMReferer            = "https://github.com/loreweave/loreweave"
	defaultLLMTitle              = "Loreweave Enrichment"
	defaultLLMTimeoutSeconds     = 90
	defaultSimilarityFloor       = 0.6
	defaultAliasCeiling          = 0.85
	defaultMisspellingMaxEdits   = 2
	defaultMisspellingMinLength  = 5
	defaultSnippetRadius         = 60
	defaultMaxContentChars       = 200_000
	defaultEnrichmentContextChar = 6000
	defaultEnrichmentMaxEntities = 40
)

// Supported LLM providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Analysis: Analysis{
			SimilarityFloor:      defaultSimilarityFloor,
			AliasCeiling:         defaultAliasCeiling,
			MisspellingMaxEdits:  defaultMisspellingMaxEdits,
			MisspellingMinLength: defaultMisspellingMinLength,
			SnippetRadius:        defaultSnippetRadius,
			MaxContentChars:      defaultMaxContentChars,
		},
		Enrichment: Enrichment{
			Enabled:          true,
			ContextCharLimit: defaultEnrichmentContextChar,
			MaxEntities:      defaultEnrichmentMaxEntities,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
