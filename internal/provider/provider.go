// Package provider constructs the LLM backends used for relevance judgment.
// The set of supported backends is closed: an unsupported kind fails with a
// clear error at startup rather than at the first request.
// Supported backends: Ollama, OpenAI, Azure OpenAI, AWS Bedrock, Google Gemini.
package provider

import (
	"fmt"
	"os"
	"strconv"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock via its OpenAI-compatible runtime.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Tier selects which of the two configured models handles a judgment call.
// Relevance scoring runs on the low tier; decontextualization and other
// query-understanding checks run on the high tier.
type Tier string

const (
	// TierLow is the cheap, fast model used for per-item scoring.
	TierLow Tier = "low"
	// TierHigh is the stronger model used for query-level checks.
	TierHigh Tier = "high"
)

// ProviderOllama holds Ollama-specific settings.
type ProviderOllama struct {
	// Host is the Ollama API endpoint.
	Host string
}

// ProviderOpenAI holds OpenAI-specific settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string
}

// ProviderAzureOpenAI holds Azure OpenAI-specific settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure OpenAI API key.
	APIKey string
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string
	// APIVersion is the Azure OpenAI REST API version.
	APIVersion string
}

// ProviderBedrock holds AWS Bedrock-specific settings.
type ProviderBedrock struct {
	// APIKey is the credential for the Bedrock-compatible endpoint.
	APIKey string
	// Endpoint is the Bedrock-compatible API endpoint.
	Endpoint string
}

// ProviderGemini holds Google Gemini-specific settings.
type ProviderGemini struct {
	// APIKey is the Google API key.
	APIKey string
}

// Models names the two judgment models by tier.
type Models struct {
	// Low is the model name for TierLow calls (e.g. "llama3", "gpt-4o-mini").
	Low string
	// High is the model name for TierHigh calls (e.g. "gpt-4o").
	High string
}

// SharedTuning holds generation parameters applied to both tiers.
type SharedTuning struct {
	// MaxTokens caps the tokens generated per judgment.
	MaxTokens int
	// Temperature controls response randomness. Judgments want near-zero.
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Models names the low- and high-tier judgment models.
	Models Models

	// Ollama holds Ollama-specific settings.
	Ollama ProviderOllama
	// OpenAI holds OpenAI-specific settings.
	OpenAI ProviderOpenAI
	// AzureOpenAI holds Azure OpenAI-specific settings.
	AzureOpenAI ProviderAzureOpenAI
	// Bedrock holds AWS Bedrock-specific settings.
	Bedrock ProviderBedrock
	// Gemini holds Google Gemini-specific settings.
	Gemini ProviderGemini

	// Tuning holds generation parameters shared by both tiers.
	Tuning SharedTuning
}

// Validate checks that the selected backend has every setting it needs,
// so callers get a clear error at startup rather than on the first request.
func (c *Config) Validate() error {
	if c.Models.Low == "" {
		return fmt.Errorf("provider: MODEL_LOW is required")
	}
	if c.Models.High == "" {
		return fmt.Errorf("provider: MODEL_HIGH is required")
	}
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("provider: OLLAMA_HOST is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
	case BackendBedrock:
		if c.Bedrock.APIKey == "" {
			return fmt.Errorf("provider: BEDROCK_API_KEY is required for bedrock backend")
		}
		if c.Bedrock.Endpoint == "" {
			return fmt.Errorf("provider: BEDROCK_ENDPOINT is required for bedrock backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: ollama, openai, azure, bedrock, gemini", c.Backend)
	}
	return nil
}

// ConfigFromEnv resolves a Config from environment variables.
//
// Environment variables:
//
//	MODEL_PROVIDER = ollama | openai | azure | bedrock | gemini (default: ollama)
//	MODEL_LOW      = low-tier model name  (default per backend)
//	MODEL_HIGH     = high-tier model name (default: MODEL_LOW)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434)
//	OpenAI:  OPENAI_API_KEY
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Bedrock: BEDROCK_API_KEY, BEDROCK_ENDPOINT
//	Gemini:  GOOGLE_API_KEY
//
//	Shared:  MODEL_MAX_TOKENS (default: 512), MODEL_TEMPERATURE (default: 0)
func ConfigFromEnv() *Config {
	backend := Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendOllama)))

	low := os.Getenv("MODEL_LOW")
	if low == "" {
		low = defaultLowModel(backend)
	}
	high := getEnvOrDefault("MODEL_HIGH", low)

	return &Config{
		Backend: backend,
		Models:  Models{Low: low, High: high},
		Ollama: ProviderOllama{
			Host: getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: os.Getenv("OPENAI_API_KEY"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Bedrock: ProviderBedrock{
			APIKey:   os.Getenv("BEDROCK_API_KEY"),
			Endpoint: os.Getenv("BEDROCK_ENDPOINT"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
		},
		Tuning: SharedTuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 512),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0),
		},
	}
}

// defaultLowModel returns a sensible default low-tier model per backend.
func defaultLowModel(b Backend) string {
	switch b {
	case BackendOpenAI, BackendAzure:
		return "gpt-4o-mini"
	case BackendGemini:
		return "gemini-1.5-flash"
	default:
		return "llama3"
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
