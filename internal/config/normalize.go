package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeAnalysis()
	c.normalizeEnrichment()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = ExpandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("LOREWEAVE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		switch c.LLM.Provider {
		case ProviderOpenAI:
			c.LLM.BaseURL = defaultOpenAIBaseURL
		default:
			c.LLM.BaseURL = defaultOpenRouterBaseURL
		}
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		envKeys := []string{"LOREWEAVE_LLM_API_KEY", "OPENROUTER_API_KEY"}
		if c.LLM.Provider == ProviderOpenAI {
			envKeys = []string{"LOREWEAVE_LLM_API_KEY", "OPENAI_API_KEY"}
		}
		for _, key := range envKeys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
}

func (c *Config) normalizeAnalysis() {
	if c.Analysis.SimilarityFloor <= 0 {
		c.Analysis.SimilarityFloor = defaultSimilarityFloor
	}
	if c.Analysis.AliasCeiling <= 0 {
		c.Analysis.AliasCeiling = defaultAliasCeiling
	}
	if c.Analysis.MisspellingMaxEdits <= 0 {
		c.Analysis.MisspellingMaxEdits = defaultMisspellingMaxEdits
	}
	if c.Analysis.MisspellingMinLength <= 0 {
		c.Analysis.MisspellingMinLength = defaultMisspellingMinLength
	}
	if c.Analysis.SnippetRadius <= 0 {
		c.Analysis.SnippetRadius = defaultSnippetRadius
	}
	if c.Analysis.MaxContentChars <= 0 {
		c.Analysis.MaxContentChars = defaultMaxContentChars
	}
}

func (c *Config) normalizeEnrichment() {
	if c.Enrichment.ContextCharLimit <= 0 {
		c.Enrichment.ContextCharLimit = defaultEnrichmentContextChar
	}
	if c.Enrichment.MaxEntities <= 0 {
		c.Enrichment.MaxEntities = defaultEnrichmentMaxEntities
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
