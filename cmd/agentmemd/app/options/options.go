// Package options assembles the agentmemd server's configuration surface:
// one root ServerOptions struct aggregating every sub-component's own
// options.IOptions, plus the glue that turns a completed ServerOptions into
// the resource definitions the resource initializer builds.
package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/agentmem/internal/resourceinit"
	"github.com/kart-io/agentmem/pkg/options"
	cacheopts "github.com/kart-io/agentmem/pkg/options/cache"
	llmopts "github.com/kart-io/agentmem/pkg/options/llm"
	loggeropts "github.com/kart-io/agentmem/pkg/options/logger"
	milvusopts "github.com/kart-io/agentmem/pkg/options/milvus"
	mongodbopts "github.com/kart-io/agentmem/pkg/component/mongodb"
	pkgvalidator "github.com/kart-io/agentmem/pkg/validator"
)

var _ options.IOptions = (*ServerOptions)(nil)

// ServerOptions is the root configuration for the agentmemd process: every
// field below either is, or nests, a sub-component's own IOptions.
type ServerOptions struct {
	Log        *loggeropts.Options      `json:"log" mapstructure:"log"`
	Embedding  *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	EmbedCache *cacheopts.Options       `json:"embed-cache" mapstructure:"embed-cache"`
	Chat       *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`
	Store      *StoreOptions            `json:"store" mapstructure:"store"`
	Session    *SessionOptions          `json:"session" mapstructure:"session"`
	Profile    *ProfileOptions          `json:"profile" mapstructure:"profile"`
	ShortTerm  *ShortTermOptions        `json:"short-term" mapstructure:"short-term"`

	// Reranker, Deriver, Mutator and Postulator select the variant name each
	// registry builds (see the corresponding registry's *Name constants).
	Reranker    string `json:"reranker" mapstructure:"reranker"`
	Deriver     string `json:"deriver" mapstructure:"deriver"`
	Mutator     string `json:"mutator" mapstructure:"mutator"`
	Postulator  string `json:"postulator" mapstructure:"postulator"`
	PostulatorN int    `json:"postulator-n" mapstructure:"postulator-n"`

	// CandidateFanout multiplies a query's limit for the over-fetch passed
	// to the vector-graph store before reranking narrows it back down.
	CandidateFanout int `json:"candidate-fanout" mapstructure:"candidate-fanout"`

	// MetricsName becomes the OTel meter name the metrics factory requests.
	MetricsName string `json:"metrics-name" mapstructure:"metrics-name"`

	// ShutdownTimeout bounds how long Run waits for in-flight work to drain
	// after a shutdown signal before forcing teardown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions returns a ServerOptions populated with every
// sub-component's own defaults.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Log:             loggeropts.NewOptions(),
		Embedding:       llmopts.NewEmbeddingOptions(),
		EmbedCache:      cacheopts.NewOptions(),
		Chat:            llmopts.NewChatOptions(),
		Store:           NewStoreOptions(),
		Session:         NewSessionOptions(),
		Profile:         NewProfileOptions(),
		ShortTerm:       NewShortTermOptions(),
		Reranker:        "bm25",
		Deriver:         "sentence_split",
		Mutator:         "identity",
		Postulator:      "previous_n",
		PostulatorN:     5,
		CandidateFanout: 4,
		MetricsName:     "agentmem",
		ShutdownTimeout: 15 * time.Second,
	}
}

// AddFlags registers every sub-component's flags under the root FlagSet.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	o.Log.AddFlags(fs, prefixes...)
	o.Embedding.AddFlags(fs, append(prefixes, "embedding")...)
	o.EmbedCache.AddFlags(fs, append(prefixes, "embed-cache")...)
	o.Chat.AddFlags(fs, append(prefixes, "chat")...)
	o.Store.AddFlags(fs, prefixes...)
	o.Session.AddFlags(fs, prefixes...)
	o.Profile.AddFlags(fs, prefixes...)
	o.ShortTerm.AddFlags(fs, prefixes...)

	join := options.Join(prefixes...)
	fs.StringVar(&o.Reranker, join+"reranker", o.Reranker, "Reranker variant (bm25, cross_encoder, embedder_similarity, identity, rrf_hybrid).")
	fs.StringVar(&o.Deriver, join+"deriver", o.Deriver, "Derivative deriver variant (concatenation, identity, llm_summary, sentence_split).")
	fs.StringVar(&o.Mutator, join+"mutator", o.Mutator, "Derivative mutator variant (identity, llm_rewrite, metadata_templated).")
	fs.StringVar(&o.Postulator, join+"postulator", o.Postulator, "Related-episode postulator variant (null, previous_n).")
	fs.IntVar(&o.PostulatorN, join+"postulator-n", o.PostulatorN, "N for the previous_n postulator.")
	fs.IntVar(&o.CandidateFanout, join+"candidate-fanout", o.CandidateFanout, "Query candidate over-fetch multiplier.")
	fs.StringVar(&o.MetricsName, join+"metrics-name", o.MetricsName, "OTel meter name.")
	fs.DurationVar(&o.ShutdownTimeout, join+"shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown deadline.")
}

// Validate runs struct-tag validation over the root options plus each
// sub-component's own bespoke checks.
func (o *ServerOptions) Validate() []error {
	var errs []error

	if verrs := pkgvalidator.StructErrors(o); verrs.HasErrors() {
		for _, fe := range verrs.Errors {
			errs = append(errs, fmt.Errorf("%s: %s", fe.Field, fe.Message))
		}
	}

	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Embedding.Validate()...)
	errs = append(errs, o.EmbedCache.Validate()...)
	errs = append(errs, o.Chat.Validate()...)
	errs = append(errs, o.Store.Validate()...)
	errs = append(errs, o.Session.Validate()...)
	errs = append(errs, o.Profile.Validate()...)
	errs = append(errs, o.ShortTerm.Validate()...)

	if !validReranker[o.Reranker] {
		errs = append(errs, fmt.Errorf("reranker: unknown variant %q", o.Reranker))
	}
	if o.CandidateFanout <= 0 {
		errs = append(errs, fmt.Errorf("candidate-fanout: must be positive"))
	}
	if o.Postulator == "previous_n" && o.PostulatorN <= 0 {
		errs = append(errs, fmt.Errorf("postulator-n: must be positive when postulator is previous_n"))
	}

	return errs
}

var validReranker = map[string]bool{
	"bm25": true, "cross_encoder": true, "embedder_similarity": true, "identity": true, "rrf_hybrid": true,
}

// Complete fills in defaults that depend on another already-parsed field.
func (o *ServerOptions) Complete() error {
	if err := o.Embedding.Complete(); err != nil {
		return err
	}
	if err := o.Chat.Complete(); err != nil {
		return err
	}
	if err := o.EmbedCache.Complete(); err != nil {
		return err
	}
	if err := o.Profile.Mongo.Complete(); err != nil {
		return err
	}
	return o.Store.Complete()
}

// resourceID names the fixed, well-known ids of the resource graph this
// process always builds. Session and profile memory are built directly by
// server.go rather than through the initializer: neither is a variant
// family a registry selects between.
const (
	ResourceEmbedder       = "embedder"
	ResourceLanguageModel  = "language_model"
	ResourceStore          = "vector_graph_store"
	ResourceReranker       = "reranker"
	ResourceDeriver        = "deriver"
	ResourceMutator        = "mutator"
	ResourcePostulator     = "postulator"
	ResourceDeclarative    = "declarative_memory"
	ResourceMetricsFactory = "metrics_factory"
	ResourceShortTerm      = "short_term_memory"
)

// Definitions builds the resourceinit.Definition graph for every resource
// this process assembles through the Resource Initializer. Session Manager
// and Profile Memory are constructed separately (see server.go) because
// they are singletons, not named variant families.
func (o *ServerOptions) Definitions() map[string]resourceinit.Definition {
	defs := map[string]resourceinit.Definition{
		ResourceEmbedder:      {Type: "embedder", Name: o.Embedding.Provider, Config: o.Embedding.ToConfigMap()},
		ResourceLanguageModel: {Type: "language_model", Name: o.Chat.Provider, Config: o.Chat.ToConfigMap()},
		ResourceStore:         {Type: "vector_graph_store", Name: o.Store.Backend, Config: o.Store.StoreConfig()},
		ResourceMetricsFactory: {
			Type: "metrics_factory", Name: "default", Config: map[string]any{"name": o.MetricsName},
		},
	}

	if o.EmbedCache.Enabled {
		defs[ResourceEmbedder] = resourceinit.Definition{
			Type: "embedder",
			Name: "redis-cached",
			Config: map[string]any{
				"wrapped_provider":  o.Embedding.Provider,
				"wrapped_config":    o.Embedding.ToConfigMap(),
				"cache_ttl_seconds": int(o.EmbedCache.TTL.Seconds()),
				"cache_key_prefix":  o.EmbedCache.KeyPrefix,
				"redis": map[string]any{
					"addr":     fmt.Sprintf("%s:%d", o.EmbedCache.Redis.Host, o.EmbedCache.Redis.Port),
					"password": o.EmbedCache.Redis.Password,
					"db":       o.EmbedCache.Redis.Database,
				},
			},
		}
	}

	rerankerConfig := map[string]any{}
	switch o.Reranker {
	case "cross_encoder":
		rerankerConfig["model"] = ResourceLanguageModel
	case "embedder_similarity":
		rerankerConfig["provider"] = ResourceEmbedder
	case "rrf_hybrid":
		// The hybrid fuses a lexical and a semantic pass; each sub-reranker
		// is its own resource so the initializer orders them first.
		defs[ResourceReranker+".bm25"] = resourceinit.Definition{
			Type: "reranker", Name: "bm25", Config: map[string]any{},
		}
		defs[ResourceReranker+".embedder_similarity"] = resourceinit.Definition{
			Type: "reranker", Name: "embedder_similarity",
			Config: map[string]any{"provider": ResourceEmbedder},
		}
		rerankerConfig["sub_rerankers"] = []string{
			ResourceReranker + ".bm25",
			ResourceReranker + ".embedder_similarity",
		}
	}
	defs[ResourceReranker] = resourceinit.Definition{Type: "reranker", Name: o.Reranker, Config: rerankerConfig}

	deriverConfig := map[string]any{}
	if o.Deriver == "llm_summary" {
		deriverConfig["model"] = ResourceLanguageModel
	}
	defs[ResourceDeriver] = resourceinit.Definition{Type: "derivative_deriver", Name: o.Deriver, Config: deriverConfig}

	mutatorConfig := map[string]any{}
	if o.Mutator == "llm_rewrite" {
		mutatorConfig["model"] = ResourceLanguageModel
	}
	defs[ResourceMutator] = resourceinit.Definition{Type: "derivative_mutator", Name: o.Mutator, Config: mutatorConfig}

	postulatorConfig := map[string]any{"n": o.PostulatorN}
	if o.Postulator == "previous_n" {
		postulatorConfig["store"] = ResourceStore
	}
	defs[ResourcePostulator] = resourceinit.Definition{
		Type: "related_episode_postulator", Name: o.Postulator, Config: postulatorConfig,
	}

	defs[ResourceDeclarative] = resourceinit.Definition{
		Type: "declarative_memory",
		Config: map[string]any{
			"store":            ResourceStore,
			"embedder":         ResourceEmbedder,
			"deriver":          ResourceDeriver,
			"mutator":          ResourceMutator,
			"postulator":       ResourcePostulator,
			"reranker":         ResourceReranker,
			"metrics":          ResourceMetricsFactory,
			"candidate_fanout": o.CandidateFanout,
		},
	}

	defs[ResourceShortTerm] = resourceinit.Definition{
		Type: "short_term_memory",
		Config: map[string]any{
			"model":                 ResourceLanguageModel,
			"capacity":              o.ShortTerm.Capacity,
			"max_message_len":       o.ShortTerm.MaxMessageLen,
			"max_token_num":         o.ShortTerm.MaxTokenNum,
			"summary_system_prompt": o.ShortTerm.SummarySystemPrompt,
			"summary_user_prompt":   o.ShortTerm.SummaryUserPrompt,
		},
	}

	return defs
}

// StoreOptions selects and configures the vector-graph store backend.
type StoreOptions struct {
	// Backend is "sqlite" or "milvus".
	Backend string `json:"backend" mapstructure:"backend"`
	// Dimension is the embedding width stored vectors carry.
	Dimension int `json:"dimension" mapstructure:"dimension"`
	// Metric selects the similarity ordering (cosine, dot, euclidean, manhattan).
	Metric string `json:"metric" mapstructure:"metric"`

	// SQLitePath is the database file, or ":memory:", when Backend is sqlite.
	SQLitePath string `json:"sqlite-path" mapstructure:"sqlite-path"`

	// Milvus, Collection and SidePath configure the milvus backend.
	Milvus     *milvusopts.Options `json:"milvus" mapstructure:"milvus"`
	Collection string              `json:"collection" mapstructure:"collection"`
	SidePath   string              `json:"side-path" mapstructure:"side-path"`
}

// NewStoreOptions returns sqlite-backed defaults, the zero-dependency path.
func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Backend:    "sqlite",
		Dimension:  768,
		Metric:     "cosine",
		SQLitePath: "agentmem.db",
		Milvus:     milvusopts.NewOptions(),
		Collection: "agentmem_episodes",
		SidePath:   "agentmem_edges.db",
	}
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	join := options.Join(prefixes...)
	fs.StringVar(&o.Backend, join+"store.backend", o.Backend, "Vector-graph store backend (sqlite, milvus).")
	fs.IntVar(&o.Dimension, join+"store.dimension", o.Dimension, "Embedding dimension.")
	fs.StringVar(&o.Metric, join+"store.metric", o.Metric, "Similarity metric (cosine, dot, euclidean, manhattan).")
	fs.StringVar(&o.SQLitePath, join+"store.sqlite-path", o.SQLitePath, "SQLite database path (sqlite backend only).")
	fs.StringVar(&o.Collection, join+"store.collection", o.Collection, "Milvus collection name (milvus backend only).")
	fs.StringVar(&o.SidePath, join+"store.side-path", o.SidePath, "SQLite side-table path for milvus edges/labels (milvus backend only).")
	o.Milvus.AddFlags(fs, append(prefixes, "store")...)
}

func (o *StoreOptions) Validate() []error {
	var errs []error
	switch o.Backend {
	case "sqlite", "milvus":
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", o.Backend))
	}
	if o.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("store.dimension: must be positive"))
	}
	if !validMetric[o.Metric] {
		errs = append(errs, fmt.Errorf("store.metric: unknown metric %q", o.Metric))
	}
	if o.Backend == "milvus" {
		errs = append(errs, o.Milvus.Validate()...)
	}
	return errs
}

var validMetric = map[string]bool{"cosine": true, "dot": true, "euclidean": true, "manhattan": true}

func (o *StoreOptions) Complete() error { return nil }

// StoreConfig decodes to vectorgraph.SQLiteConfig or vectorgraph.MilvusConfig
// depending on Backend, matching the resourceinit vector_graph_store
// builder's expectations.
func (o *StoreOptions) StoreConfig() map[string]any {
	if o.Backend == "milvus" {
		return map[string]any{
			"Address":    o.Milvus.Address,
			"Username":   o.Milvus.Username,
			"Password":   o.Milvus.Password,
			"Database":   o.Milvus.Database,
			"Collection": o.Collection,
			"Dimension":  o.Dimension,
			"Metric":     o.Metric,
			"Timeout":    o.Milvus.Timeout,
			"SidePath":   o.SidePath,
		}
	}
	return map[string]any{
		"Path":      o.SQLitePath,
		"Dimension": o.Dimension,
		"Metric":    o.Metric,
	}
}

// SessionOptions configures the Session Manager's relational backend.
type SessionOptions struct {
	// DSN selects the driver by scheme: "mysql://", "postgres://", or
	// anything else (including a bare path or ":memory:") for sqlite.
	DSN string `json:"dsn" mapstructure:"dsn" validate:"required"`
}

func NewSessionOptions() *SessionOptions {
	return &SessionOptions{DSN: "agentmem_sessions.db"}
}

func (o *SessionOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DSN, options.Join(prefixes...)+"session.dsn", o.DSN, "Session manager relational DSN.")
}

func (o *SessionOptions) Validate() []error {
	if o.DSN == "" {
		return []error{fmt.Errorf("session.dsn: is required")}
	}
	return nil
}

// ProfileOptions configures Profile Memory's Mongo-backed store and its
// extraction tuning knobs.
type ProfileOptions struct {
	Mongo *mongodbopts.Options `json:"mongo" mapstructure:"mongo"`

	HistoryBatchSize          int           `json:"history-batch-size" mapstructure:"history-batch-size"`
	UpdateSimilarityThreshold float64       `json:"update-similarity-threshold" mapstructure:"update-similarity-threshold"`
	ConsolidationThreshold    int           `json:"consolidation-threshold" mapstructure:"consolidation-threshold"`
	TrackerInterval           time.Duration `json:"tracker-interval" mapstructure:"tracker-interval"`
	ConsolidationInterval     time.Duration `json:"consolidation-interval" mapstructure:"consolidation-interval"`
}

func NewProfileOptions() *ProfileOptions {
	mongo := mongodbopts.NewOptions()
	mongo.Database = "agentmem"
	return &ProfileOptions{
		Mongo:                     mongo,
		HistoryBatchSize:          20,
		UpdateSimilarityThreshold: 0.85,
		ConsolidationThreshold:    20,
		TrackerInterval:           10 * time.Second,
		ConsolidationInterval:     5 * time.Minute,
	}
}

func (o *ProfileOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	join := options.Join(prefixes...)
	fs.IntVar(&o.HistoryBatchSize, join+"profile.history-batch-size", o.HistoryBatchSize, "Uningested history entries read per extraction job.")
	fs.Float64Var(&o.UpdateSimilarityThreshold, join+"profile.update-similarity-threshold", o.UpdateSimilarityThreshold, "Minimum cosine similarity for an update/delete match.")
	fs.IntVar(&o.ConsolidationThreshold, join+"profile.consolidation-threshold", o.ConsolidationThreshold, "Entry count above which a (tag, feature) group is eligible for consolidation.")
	fs.DurationVar(&o.TrackerInterval, join+"profile.tracker-interval", o.TrackerInterval, "Background loop poll interval for extraction-due users.")
	fs.DurationVar(&o.ConsolidationInterval, join+"profile.consolidation-interval", o.ConsolidationInterval, "Background loop consolidation sweep interval.")
	o.Mongo.AddFlags(fs, options.Join(append(prefixes, "profile", "mongo")...))
}

func (o *ProfileOptions) Validate() []error {
	var errs []error
	if err := o.Mongo.Validate(); err != nil {
		errs = append(errs, err)
	}
	if o.UpdateSimilarityThreshold <= 0 || o.UpdateSimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("profile.update-similarity-threshold: must be in (0, 1]"))
	}
	return errs
}

// ShortTermOptions configures the per-session working-memory window and its
// LLM-driven auto-summarization.
type ShortTermOptions struct {
	Capacity            int    `json:"capacity" mapstructure:"capacity"`
	MaxMessageLen       int    `json:"max-message-len" mapstructure:"max-message-len"`
	MaxTokenNum         int    `json:"max-token-num" mapstructure:"max-token-num"`
	SummarySystemPrompt string `json:"summary-system-prompt" mapstructure:"summary-system-prompt"`
	SummaryUserPrompt   string `json:"summary-user-prompt" mapstructure:"summary-user-prompt"`
}

func NewShortTermOptions() *ShortTermOptions {
	return &ShortTermOptions{
		Capacity:      20,
		MaxMessageLen: 4000,
		MaxTokenNum:   4000,
	}
}

func (o *ShortTermOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	join := options.Join(prefixes...)
	fs.IntVar(&o.Capacity, join+"short-term.capacity", o.Capacity, "Session working-memory episode window size.")
	fs.IntVar(&o.MaxMessageLen, join+"short-term.max-message-len", o.MaxMessageLen, "Max characters of an episode fed to the summarization prompt.")
	fs.IntVar(&o.MaxTokenNum, join+"short-term.max-token-num", o.MaxTokenNum, "Default token budget for session context retrieval.")
	fs.StringVar(&o.SummarySystemPrompt, join+"short-term.summary-system-prompt", o.SummarySystemPrompt, "Override the default summarization system prompt.")
	fs.StringVar(&o.SummaryUserPrompt, join+"short-term.summary-user-prompt", o.SummaryUserPrompt, "Override the default summarization user prompt template.")
}

func (o *ShortTermOptions) Validate() []error {
	var errs []error
	if o.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("short-term.capacity: must be positive"))
	}
	if o.MaxMessageLen <= 0 {
		errs = append(errs, fmt.Errorf("short-term.max-message-len: must be positive"))
	}
	if o.MaxTokenNum <= 0 {
		errs = append(errs, fmt.Errorf("short-term.max-token-num: must be positive"))
	}
	return errs
}

func NewOptions() *ServerOptions { return NewServerOptions() }
