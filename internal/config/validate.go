package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
//
// A missing LLM API key is not an error: analysis and review work without it,
// and enrichment reports the problem when triggered.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderOpenRouter, ProviderOpenAI:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenRouter, ProviderOpenAI, c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds > 600 {
		return errors.New("llm.timeout_seconds must be at most 600")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	a := c.Analysis
	if a.SimilarityFloor <= 0 || a.SimilarityFloor >= 1 {
		return errors.New("analysis.similarity_floor must be between 0 and 1")
	}
	if a.AliasCeiling <= a.SimilarityFloor || a.AliasCeiling > 1 {
		return errors.New("analysis.alias_ceiling must be greater than similarity_floor and at most 1")
	}
	if a.MisspellingMaxEdits > 4 {
		return errors.New("analysis.misspelling_max_edits must be at most 4")
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	if c.Enrichment.ContextCharLimit < 500 {
		return errors.New("enrichment.context_char_limit must be at least 500")
	}
	return nil
}
