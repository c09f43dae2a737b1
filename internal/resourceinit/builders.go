package resourceinit

import (
	"context"
	"fmt"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/agentmem/internal/memory/declarative"
	"github.com/kart-io/agentmem/internal/memory/deriver"
	"github.com/kart-io/agentmem/internal/memory/embed"
	"github.com/kart-io/agentmem/internal/memory/llm"
	"github.com/kart-io/agentmem/internal/memory/mutator"
	"github.com/kart-io/agentmem/internal/memory/postulator"
	"github.com/kart-io/agentmem/internal/memory/reranker"
	"github.com/kart-io/agentmem/internal/memory/shortterm"
	"github.com/kart-io/agentmem/internal/memory/vectorgraph"
	"github.com/kart-io/agentmem/internal/metrics"
	memerr "github.com/kart-io/agentmem/pkg/errors"
)

func init() {
	RegisterBuilder("vector_graph_store", vectorGraphStoreBuilder{})
	RegisterBuilder("embedder", embedderBuilder{})
	RegisterBuilder("language_model", languageModelBuilder{})
	RegisterBuilder("reranker", rerankerBuilder{})
	RegisterBuilder("derivative_deriver", deriverBuilder{})
	RegisterBuilder("derivative_mutator", mutatorBuilder{})
	RegisterBuilder("related_episode_postulator", postulatorBuilder{})
	RegisterBuilder("declarative_memory", declarativeMemoryBuilder{})
	RegisterBuilder("metrics_factory", metricsFactoryBuilder{})
	RegisterBuilder("short_term_memory", shortTermMemoryBuilder{})
}

func decode(config map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: target, WeaklyTypedInput: true})
	if err != nil {
		return err
	}
	return dec.Decode(config)
}

// stringID reads config[key] as a resource id string. ok is false when the
// key is absent or empty, which callers treat as "no such dependency".
func stringID(config map[string]any, key string) (string, bool) {
	v, _ := config[key].(string)
	return v, v != ""
}

// stringIDs reads config[key] as a list of resource id strings.
func stringIDs(config map[string]any, key string) []string {
	v, _ := config[key].([]string)
	return v
}

// --- vector_graph_store ---

type vectorGraphStoreBuilder struct{}

func (vectorGraphStoreBuilder) DependencyIDs(_ string, _ map[string]any) []string { return nil }

func (vectorGraphStoreBuilder) Build(ctx context.Context, name string, config map[string]any, _ map[string]any) (any, error) {
	switch name {
	case "sqlite":
		var cfg vectorgraph.SQLiteConfig
		if err := decode(config, &cfg); err != nil {
			return nil, memerr.ErrInvalidConfig.WithCause(err)
		}
		return vectorgraph.NewSQLiteStore(cfg)
	case "milvus":
		var cfg vectorgraph.MilvusConfig
		if err := decode(config, &cfg); err != nil {
			return nil, memerr.ErrInvalidConfig.WithCause(err)
		}
		return vectorgraph.NewMilvusStore(ctx, cfg)
	default:
		return nil, memerr.ErrInvalidConfig.WithMessage(fmt.Sprintf("vector_graph_store: unknown variant %q", name))
	}
}

// --- embedder ---

type embedderBuilder struct{}

func (embedderBuilder) DependencyIDs(name string, config map[string]any) []string {
	if name != "redis-cached" {
		return nil
	}
	if id, ok := stringID(config, "wraps"); ok {
		return []string{id}
	}
	return nil
}

func (embedderBuilder) Build(ctx context.Context, name string, config map[string]any, injections map[string]any) (any, error) {
	if name != "redis-cached" {
		return embed.New(name, config)
	}

	var inner embed.Provider
	if id, ok := stringID(config, "wraps"); ok {
		inner, _ = injections[id].(embed.Provider)
	} else {
		wrappedName, _ := config["wrapped_provider"].(string)
		wrappedConfig, _ := config["wrapped_config"].(map[string]any)
		var err error
		inner, err = embed.New(wrappedName, wrappedConfig)
		if err != nil {
			return nil, err
		}
	}
	if inner == nil {
		return nil, memerr.ErrInvalidConfig.WithMessage("embedder redis-cached: no wrapped provider resolved")
	}

	redisConfig, _ := config["redis"].(map[string]any)
	addr, _ := redisConfig["addr"].(string)
	if addr == "" {
		addr = "localhost:6379"
	}
	password, _ := redisConfig["password"].(string)
	db, _ := redisConfig["db"].(int)
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}

	cacheConfig := embed.DefaultCacheConfig()
	if ttlSeconds, ok := config["cache_ttl_seconds"].(int); ok && ttlSeconds > 0 {
		cacheConfig.TTL = time.Duration(ttlSeconds) * time.Second
	}
	if prefix, ok := config["cache_key_prefix"].(string); ok && prefix != "" {
		cacheConfig.KeyPrefix = prefix
	}
	return embed.NewCachedProvider(inner, client, cacheConfig), nil
}

// --- language_model ---

type languageModelBuilder struct{}

func (languageModelBuilder) DependencyIDs(_ string, _ map[string]any) []string { return nil }

func (languageModelBuilder) Build(_ context.Context, name string, config map[string]any, _ map[string]any) (any, error) {
	return llm.New(name, config)
}

// --- reranker ---

type rerankerBuilder struct{}

func (rerankerBuilder) DependencyIDs(name string, config map[string]any) []string {
	switch name {
	case reranker.CrossEncoderName:
		if id, ok := stringID(config, "model"); ok {
			return []string{id}
		}
	case reranker.EmbedderSimilarityName:
		if id, ok := stringID(config, "provider"); ok {
			return []string{id}
		}
	case reranker.RRFName:
		return stringIDs(config, "sub_rerankers")
	}
	return nil
}

func (rerankerBuilder) Build(_ context.Context, name string, config map[string]any, injections map[string]any) (any, error) {
	resolved := cloneConfig(config)
	var resolve func(id string) (reranker.Reranker, error)

	switch name {
	case reranker.CrossEncoderName:
		if id, ok := stringID(config, "model"); ok {
			resolved["model"] = injections[id]
		}
	case reranker.EmbedderSimilarityName:
		if id, ok := stringID(config, "provider"); ok {
			resolved["provider"] = injections[id]
		}
	case reranker.RRFName:
		resolve = func(id string) (reranker.Reranker, error) {
			sub, ok := injections[id].(reranker.Reranker)
			if !ok {
				return nil, memerr.ErrInvalidConfig.WithMessage(fmt.Sprintf("rrf_hybrid: sub-reranker %q did not build a Reranker", id))
			}
			return sub, nil
		}
	}

	return reranker.New(name, resolved, resolve)
}

// --- derivative_deriver ---

type deriverBuilder struct{}

func (deriverBuilder) DependencyIDs(name string, config map[string]any) []string {
	if name != deriver.LLMSummaryName {
		return nil
	}
	if id, ok := stringID(config, "model"); ok {
		return []string{id}
	}
	return nil
}

func (deriverBuilder) Build(_ context.Context, name string, config map[string]any, injections map[string]any) (any, error) {
	resolved := cloneConfig(config)
	if name == deriver.LLMSummaryName {
		if id, ok := stringID(config, "model"); ok {
			resolved["model"] = injections[id]
		}
	}
	return deriver.New(name, resolved)
}

// --- derivative_mutator ---

type mutatorBuilder struct{}

func (mutatorBuilder) DependencyIDs(name string, config map[string]any) []string {
	if name != mutator.LLMRewriteName {
		return nil
	}
	if id, ok := stringID(config, "model"); ok {
		return []string{id}
	}
	return nil
}

func (mutatorBuilder) Build(_ context.Context, name string, config map[string]any, injections map[string]any) (any, error) {
	resolved := cloneConfig(config)
	if name == mutator.LLMRewriteName {
		if id, ok := stringID(config, "model"); ok {
			resolved["model"] = injections[id]
		}
	}
	return mutator.New(name, resolved)
}

// --- related_episode_postulator ---

type postulatorBuilder struct{}

func (postulatorBuilder) DependencyIDs(name string, config map[string]any) []string {
	if name != postulator.PreviousNName {
		return nil
	}
	if id, ok := stringID(config, "store"); ok {
		return []string{id}
	}
	return nil
}

func (postulatorBuilder) Build(_ context.Context, name string, config map[string]any, injections map[string]any) (any, error) {
	resolved := cloneConfig(config)
	if name == postulator.PreviousNName {
		if id, ok := stringID(config, "store"); ok {
			resolved["store"] = injections[id]
		}
	}
	return postulator.New(name, resolved)
}

// --- declarative_memory ---

type declarativeMemoryBuilder struct{}

func (declarativeMemoryBuilder) DependencyIDs(_ string, config map[string]any) []string {
	var ids []string
	for _, key := range []string{"store", "embedder", "deriver", "mutator", "postulator", "reranker", "metrics"} {
		if id, ok := stringID(config, key); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (declarativeMemoryBuilder) Build(_ context.Context, _ string, config map[string]any, injections map[string]any) (any, error) {
	cfg := declarative.Config{}

	if id, ok := stringID(config, "store"); ok {
		cfg.Store, _ = injections[id].(vectorgraph.Store)
	}
	if id, ok := stringID(config, "embedder"); ok {
		cfg.Embedder, _ = injections[id].(embed.Provider)
	}
	if id, ok := stringID(config, "deriver"); ok {
		cfg.Deriver, _ = injections[id].(deriver.Deriver)
	}
	if id, ok := stringID(config, "mutator"); ok {
		cfg.Mutator, _ = injections[id].(mutator.Mutator)
	}
	if id, ok := stringID(config, "postulator"); ok {
		cfg.Postulator, _ = injections[id].(postulator.Postulator)
	}
	if id, ok := stringID(config, "reranker"); ok {
		cfg.Reranker, _ = injections[id].(reranker.Reranker)
	}
	if id, ok := stringID(config, "metrics"); ok {
		cfg.Metrics, _ = injections[id].(*metrics.Factory)
	}
	if fanout, ok := config["candidate_fanout"].(int); ok && fanout > 0 {
		cfg.CandidateFanout = fanout
	}

	return declarative.New(cfg)
}

// --- metrics_factory ---

type metricsFactoryBuilder struct{}

func (metricsFactoryBuilder) DependencyIDs(_ string, _ map[string]any) []string { return nil }

func (metricsFactoryBuilder) Build(_ context.Context, _ string, config map[string]any, _ map[string]any) (any, error) {
	name, _ := config["name"].(string)
	return metrics.New(metrics.Config{Name: name})
}

// --- short_term_memory ---

type shortTermMemoryBuilder struct{}

func (shortTermMemoryBuilder) DependencyIDs(_ string, config map[string]any) []string {
	if id, ok := stringID(config, "model"); ok {
		return []string{id}
	}
	return nil
}

func (shortTermMemoryBuilder) Build(_ context.Context, _ string, config map[string]any, injections map[string]any) (any, error) {
	cfg := shortterm.Config{}

	if id, ok := stringID(config, "model"); ok {
		cfg.LLM, _ = injections[id].(llm.ChatProvider)
	}
	if cfg.LLM == nil {
		return nil, memerr.ErrInvalidConfig.WithMessage("short_term_memory: model dependency did not build an llm.ChatProvider")
	}
	if v, ok := config["capacity"].(int); ok {
		cfg.Capacity = v
	}
	if v, ok := config["max_message_len"].(int); ok {
		cfg.MaxMessageLen = v
	}
	if v, ok := config["max_token_num"].(int); ok {
		cfg.MaxTokenNum = v
	}
	if v, ok := config["summary_system_prompt"].(string); ok {
		cfg.SummarySystemPrompt = v
	}
	if v, ok := config["summary_user_prompt"].(string); ok {
		cfg.SummaryUserPrompt = v
	}

	return shortterm.NewManager(cfg), nil
}

func cloneConfig(config map[string]any) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = v
	}
	return out
}

