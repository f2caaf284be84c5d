// Package resolve maps client-supplied model names to concrete provider
// model identifiers with a heuristic confidence score.
package resolve

import (
	"log/slog"
	"regexp"
	"strings"

	"bedrockproxy/internal/configstore"
	"bedrockproxy/internal/core"
	"bedrockproxy/internal/observability"
)

// Resolution is the per-request outcome of model resolution. Confidence
// is a heuristic trust score used for logging only; it never alters
// routing once the resolution is made.
type Resolution struct {
	Provider          core.Provider
	ResolvedModelID   string
	OriginalModelName string
	Confidence        float64
}

// EmergencyModelID is the cheapest universally available model of the
// primary provider, used when resolution fails entirely.
const EmergencyModelID = "anthropic.claude-3-haiku-20240307-v1:0"

// Provider namespace prefixes on fully qualified model IDs.
var namespacePrefixes = []struct {
	prefix   string
	provider core.Provider
}{
	{"anthropic.", core.ProviderBedrock},
	{"amazon.", core.ProviderBedrock},
	{"cohere.", core.ProviderBedrock},
	{"meta.", core.ProviderBedrock},
	{"gpt-", core.ProviderOpenAI},
	{"text-", core.ProviderOpenAI},
	{"davinci", core.ProviderOpenAI},
	{"curie", core.ProviderOpenAI},
	{"gemini-", core.ProviderGemini},
	{"palm-", core.ProviderGemini},
}

// claudeFamily maps OpenAI-style Claude aliases to Bedrock-native IDs.
var claudeFamily = map[string]string{
	"claude-3-opus":     "anthropic.claude-3-opus-20240229-v1:0",
	"claude-3-sonnet":   "anthropic.claude-3-sonnet-20240229-v1:0",
	"claude-3-haiku":    "anthropic.claude-3-haiku-20240307-v1:0",
	"claude-3-5-sonnet": "anthropic.claude-3-5-sonnet-20240620-v1:0",
	"claude-3-5-haiku":  "anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-2.1":        "anthropic.claude-v2:1",
	"claude-2":          "anthropic.claude-v2",
	"claude-instant":    "anthropic.claude-instant-v1",
}

// claudePattern identifies Claude aliases that need rewriting to a
// native ID. Other family patterns (gpt, gemini) are already covered by
// the namespace prefixes above.
var claudePattern = regexp.MustCompile(`^claude-`)

// Resolve maps a model name to a provider model identifier.
//
// Priority: configured mapping (1.0), already-qualified namespace (1.0),
// pattern-family match (0.8-0.9), configured default provider (0.3),
// emergency fallback (0.1). Deterministic for a given (model, cfg) pair.
func Resolve(modelName string, cfg *configstore.ModelConfig) Resolution {
	modelName = strings.TrimSpace(modelName)

	if cfg == nil {
		observability.LowConfidenceResolutions.Inc()
		slog.Warn("model resolution without config, using emergency fallback",
			"model", modelName,
			"resolved", EmergencyModelID,
		)
		return Resolution{
			Provider:          core.ProviderBedrock,
			ResolvedModelID:   EmergencyModelID,
			OriginalModelName: modelName,
			Confidence:        0.1,
		}
	}

	// 1. Exact configured mapping.
	if mapped, ok := cfg.ModelMappings[modelName]; ok && mapped != "" {
		return Resolution{
			Provider:          providerForID(mapped, core.ProviderBedrock),
			ResolvedModelID:   mapped,
			OriginalModelName: modelName,
			Confidence:        1.0,
		}
	}

	// 2. Name already carries a known namespace.
	if p, ok := namespaceProvider(modelName); ok {
		return Resolution{
			Provider:          p,
			ResolvedModelID:   modelName,
			OriginalModelName: modelName,
			Confidence:        1.0,
		}
	}

	// 3. Pattern-family match.
	if r, ok := familyMatch(modelName); ok {
		return r
	}

	// 4. Default-provider fallback.
	observability.LowConfidenceResolutions.Inc()
	fallback := defaultModelFor(cfg.DefaultProvider)
	slog.Warn("unmapped model name, falling back to default provider",
		"model", modelName,
		"provider", cfg.DefaultProvider,
		"resolved", fallback,
	)
	return Resolution{
		Provider:          cfg.DefaultProvider,
		ResolvedModelID:   fallback,
		OriginalModelName: modelName,
		Confidence:        0.3,
	}
}

func namespaceProvider(name string) (core.Provider, bool) {
	for _, ns := range namespacePrefixes {
		if strings.HasPrefix(name, ns.prefix) {
			return ns.provider, true
		}
	}
	return "", false
}

// providerForID derives the provider from a mapped ID's namespace,
// defaulting when the namespace is unknown.
func providerForID(id string, fallback core.Provider) core.Provider {
	if p, ok := namespaceProvider(id); ok {
		return p
	}
	return fallback
}

func familyMatch(name string) (Resolution, bool) {
	if claudePattern.MatchString(name) {
		// Longest alias first so claude-3-5-sonnet does not match
		// as claude-3.
		best := ""
		for alias := range claudeFamily {
			if strings.HasPrefix(name, alias) && len(alias) > len(best) {
				best = alias
			}
		}
		if best != "" {
			return Resolution{
				Provider:          core.ProviderBedrock,
				ResolvedModelID:   claudeFamily[best],
				OriginalModelName: name,
				Confidence:        0.9,
			}, true
		}
		// Unknown claude variant: route to the baseline model.
		return Resolution{
			Provider:          core.ProviderBedrock,
			ResolvedModelID:   EmergencyModelID,
			OriginalModelName: name,
			Confidence:        0.8,
		}, true
	}

	return Resolution{}, false
}

// defaultModelFor returns the cheapest default model of a provider.
func defaultModelFor(p core.Provider) string {
	switch p {
	case core.ProviderOpenAI:
		return "gpt-3.5-turbo"
	case core.ProviderGemini:
		return "gemini-1.5-flash"
	default:
		return EmergencyModelID
	}
}
