// Package provider selects and constructs the chat model that answers
// questions. Supported backends: Ollama, OpenAI, Azure OpenAI, AWS Bedrock,
// Google Gemini. ChatCompleter adapts any of them to the single-prompt
// completion call the answer synthesizer needs.
package provider

import (
	"fmt"
	"strings"
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
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama base URL (OLLAMA_HOST).
	Host string
	// Model is the chat model name (OLLAMA_MODEL).
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI key (OPENAI_API_KEY). Never logged.
	APIKey string
	// Model is the chat model name (OPENAI_MODEL).
	Model string
	// BaseURL overrides the API endpoint for OpenAI-compatible gateways (OPENAI_BASE_URL).
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the resource key (AZURE_OPENAI_API_KEY). Never logged.
	APIKey string
	// Endpoint is the resource URL (AZURE_OPENAI_ENDPOINT).
	Endpoint string
	// Deployment is the chat deployment name (AZURE_OPENAI_DEPLOYMENT).
	Deployment string
	// APIVersion is the REST API version (AZURE_OPENAI_API_VERSION).
	APIVersion string
}

// ProviderBedrock holds AWS Bedrock settings.
type ProviderBedrock struct {
	// AWSRegion is the Bedrock region (AWS_REGION).
	AWSRegion string
	// ModelID is the Bedrock model identifier (BEDROCK_MODEL_ID).
	ModelID string
	// APIKey is an optional runtime API key (BEDROCK_API_KEY). Never logged.
	APIKey string
	// Endpoint overrides the runtime endpoint (BEDROCK_ENDPOINT).
	Endpoint string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is the AI Studio key (GOOGLE_API_KEY). Never logged.
	APIKey string
	// Model is the chat model name (GEMINI_MODEL).
	Model string
}

// SharedTuning holds generation settings shared by every backend. These are
// the defaults; the synthesizer passes its own values per call.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per answer (MODEL_MAX_TOKENS).
	MaxTokens int
	// Temperature controls answer randomness (MODEL_TEMPERATURE).
	Temperature float32
}

// Config holds all provider-level configuration. Only the section matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Bedrock     ProviderBedrock
	Gemini      ProviderGemini

	// Tuning holds generation defaults.
	Tuning SharedTuning
}

// Validate checks that the selected backend has every required setting. The
// error names the missing environment variable.
func (c *Config) Validate() error {
	missing := func(env string) error {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, env)
	}
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return missing("OLLAMA_MODEL")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return missing("OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return missing("OPENAI_MODEL")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return missing("AZURE_OPENAI_API_KEY")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return missing("AZURE_OPENAI_ENDPOINT")
		}
		if c.AzureOpenAI.Deployment == "" {
			return missing("AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendBedrock:
		if c.Bedrock.ModelID == "" {
			return missing("BEDROCK_MODEL_ID")
		}
		if c.Bedrock.AWSRegion == "" {
			return missing("AWS_REGION")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return missing("GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return missing("GEMINI_MODEL")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, bedrock, gemini)", c.Backend)
	}
	if c.Tuning.MaxTokens < 0 {
		return fmt.Errorf("provider: MODEL_MAX_TOKENS must not be negative, got %d", c.Tuning.MaxTokens)
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return fmt.Errorf("provider: MODEL_TEMPERATURE must be in [0, 2], got %v", c.Tuning.Temperature)
	}
	return nil
}

// ModelName returns the model or deployment name of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendBedrock:
		return c.Bedrock.ModelID
	case BackendGemini:
		return c.Gemini.Model
	default:
		return ""
	}
}

// SupportsSampling reports whether the selected model accepts temperature and
// max_tokens. Azure reasoning deployments reject both.
func (c *Config) SupportsSampling() bool {
	return !(c.Backend == BackendAzure && isAzureReasoningModel(c.AzureOpenAI.Deployment))
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex reasoning model.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	if strings.HasPrefix(d, "codex") {
		return true
	}
	if len(d) >= 2 && d[0] == 'o' && d[1] >= '1' && d[1] <= '9' {
		return true
	}
	return false
}
