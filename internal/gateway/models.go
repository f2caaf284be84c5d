package gateway

import (
	"context"
	"sort"
	"strings"
	"time"

	"bedrockproxy/internal/core"
)

// builtinModels lists the Bedrock-native models always present in the
// catalog, independent of the configured mappings.
var builtinModels = []string{
	"anthropic.claude-3-opus-20240229-v1:0",
	"anthropic.claude-3-sonnet-20240229-v1:0",
	"anthropic.claude-3-haiku-20240307-v1:0",
	"anthropic.claude-3-5-sonnet-20240620-v1:0",
	"anthropic.claude-3-5-haiku-20241022-v1:0",
	"anthropic.claude-v2:1",
	"anthropic.claude-instant-v1",
}

// ownerForModelID derives the owner tag from the ID's namespace.
func ownerForModelID(id string) string {
	if ns, _, ok := strings.Cut(id, "."); ok && ns != "" && !strings.Contains(ns, "-") {
		return ns
	}
	return "bedrock"
}

// ListModels returns the model catalog: configured OpenAI-compatible
// aliases plus built-in native IDs. When an alias and a native ID map to
// the same target, the alias wins. Sorted lexicographically by ID.
func (g *Gateway) ListModels(ctx context.Context) (*core.ModelsResponse, error) {
	cfg := g.config.Get(ctx)
	now := time.Now().Unix()

	aliased := make(map[string]bool, len(cfg.ModelMappings))
	models := make([]core.Model, 0, len(cfg.ModelMappings)+len(builtinModels))

	for alias, target := range cfg.ModelMappings {
		if alias == "" || target == "" {
			continue
		}
		aliased[target] = true
		models = append(models, core.Model{
			ID:      alias,
			Object:  "model",
			OwnedBy: ownerForModelID(target),
			Created: now,
		})
	}

	for _, id := range builtinModels {
		if aliased[id] {
			continue
		}
		models = append(models, core.Model{
			ID:      id,
			Object:  "model",
			OwnedBy: ownerForModelID(id),
			Created: now,
		})
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	return &core.ModelsResponse{
		Object: "list",
		Data:   models,
	}, nil
}
