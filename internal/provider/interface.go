// Package provider selects and constructs the chat model that writes
// answers. Supported backends: Google Gemini (default), Ollama, OpenAI,
// Azure OpenAI and an Ark-compatible endpoint for Bedrock-style deployments.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects an Ark-compatible runtime endpoint.
	BackendBedrock Backend = "bedrock"
)

// Generation defaults shared by every backend.
const (
	// DefaultGeminiModel is the model used when GEMINI_MODEL is unset.
	DefaultGeminiModel = "gemini-2.5-flash"
	// DefaultTemperature is the sampling temperature.
	DefaultTemperature float32 = 0.7
	// DefaultMaxTokens caps the length of a generated answer.
	DefaultMaxTokens = 1024
)

// ProviderGemini holds Gemini settings.
type ProviderGemini struct {
	// APIKey is the Google AI Studio key (GOOGLE_API_KEY).
	APIKey string
	// Model is the Gemini model name (GEMINI_MODEL).
	Model string
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama base URL (OLLAMA_HOST).
	Host string
	// Model is the local model tag (OLLAMA_MODEL).
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI key (OPENAI_API_KEY).
	APIKey string
	// Model is the model name (OPENAI_MODEL).
	Model string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure resource key (AZURE_OPENAI_API_KEY).
	APIKey string
	// Endpoint is the resource URL (AZURE_OPENAI_ENDPOINT).
	Endpoint string
	// Deployment is the chat deployment name (AZURE_OPENAI_DEPLOYMENT).
	Deployment string
	// APIVersion is the REST API version (AZURE_OPENAI_API_VERSION).
	APIVersion string
}

// ProviderBedrock holds settings for the Ark-compatible runtime.
type ProviderBedrock struct {
	// AWSRegion is the deployment region (AWS_REGION).
	AWSRegion string
	// ModelID is the model identifier (BEDROCK_MODEL_ID).
	ModelID string
	// APIKey authenticates against the runtime (BEDROCK_API_KEY).
	APIKey string
	// BaseURL overrides the runtime endpoint (BEDROCK_BASE_URL).
	BaseURL string
}

// SharedTuning holds generation parameters applied to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per answer.
	MaxTokens int
	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32
}

// Config holds all provider-level configuration. Only the block matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend
	// Gemini is used when Backend is BackendGemini.
	Gemini ProviderGemini
	// Ollama is used when Backend is BackendOllama.
	Ollama ProviderOllama
	// OpenAI is used when Backend is BackendOpenAI.
	OpenAI ProviderOpenAI
	// AzureOpenAI is used when Backend is BackendAzure.
	AzureOpenAI ProviderAzureOpenAI
	// Bedrock is used when Backend is BackendBedrock.
	Bedrock ProviderBedrock
	// Tuning applies to every backend.
	Tuning SharedTuning
}

// Validate reports the first missing setting for the selected backend,
// naming the environment variable that supplies it.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendBedrock:
		if c.Bedrock.ModelID == "" {
			return fmt.Errorf("provider: BEDROCK_MODEL_ID is required for bedrock backend")
		}
		if c.Bedrock.AWSRegion == "" {
			return fmt.Errorf("provider: AWS_REGION is required for bedrock backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: gemini, ollama, openai, azure, bedrock)", c.Backend)
	}
	return nil
}

// ModelName returns the model or deployment the selected backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGemini:
		return c.Gemini.Model
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendBedrock:
		return c.Bedrock.ModelID
	}
	return ""
}

// isAzureReasoningModel reports whether an Azure deployment hosts an o-series
// or codex reasoning model. Those reject temperature and take
// max_completion_tokens instead of max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
