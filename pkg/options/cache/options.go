// Package cache provides cache configuration options.
package cache

import (
	"os"
	"time"

	"github.com/kart-io/agentmem/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// RedisOptions is the subset of Redis connection settings the embedding
// cache needs to dial its backing client (see internal/memory/embed.Cache);
// it is not a general-purpose component option, so it carries only the
// fields that call site actually reads.
type RedisOptions struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Password string `json:"-" mapstructure:"password"`
	Database int    `json:"database" mapstructure:"database"`
}

// NewRedisOptions returns the default embed-cache Redis connection.
func NewRedisOptions() *RedisOptions {
	return &RedisOptions{Host: "127.0.0.1", Port: 6379, Database: 0}
}

// AddFlags adds flags for the embed-cache Redis connection to fs.
func (o *RedisOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Host, options.Join(prefixes...)+"redis.host", o.Host, "Redis service host address.")
	fs.IntVar(&o.Port, options.Join(prefixes...)+"redis.port", o.Port, "Redis service port.")
	fs.StringVar(&o.Password, options.Join(prefixes...)+"redis.password", o.Password, "Password for access to redis (DEPRECATED: use REDIS_PASSWORD env var instead).")
	fs.IntVar(&o.Database, options.Join(prefixes...)+"redis.database", o.Database, "Redis database index.")
}

// Complete reads the password from REDIS_PASSWORD when unset via flag.
func (o *RedisOptions) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("REDIS_PASSWORD")
	}
	return nil
}

// Validate checks the embed-cache Redis connection. It is idempotent and
// side-effect free.
func (o *RedisOptions) Validate() []error {
	if o == nil {
		return nil
	}
	return nil
}

// Options configures the Redis-backed embedding cache that wraps the
// embedding provider.
type Options struct {
	// Enabled turns the cache layer on; when false the provider is called
	// directly.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is how long a cached embedding lives. Embeddings for a fixed
	// (model, text) pair never change, so a long TTL is safe.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces this process's cache keys within Redis.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis is the backing connection.
	Redis *RedisOptions `json:"redis" mapstructure:"redis"`
}

// NewOptions returns embed-cache defaults: disabled (so a bare agentmemd
// run needs no Redis), day-long TTL once enabled.
func NewOptions() *Options {
	return &Options{
		Enabled:   false,
		TTL:       24 * time.Hour,
		KeyPrefix: "agentmem:emb:",
		Redis:     NewRedisOptions(),
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, options.Join(prefixes...)+"cache.enabled", o.Enabled, "Enable cache.")
	fs.DurationVar(&o.TTL, options.Join(prefixes...)+"cache.ttl", o.TTL, "Cache TTL duration.")
	fs.StringVar(&o.KeyPrefix, options.Join(prefixes...)+"cache.key-prefix", o.KeyPrefix, "Cache key prefix.")

	if o.Redis == nil {
		o.Redis = NewRedisOptions()
	}
	o.Redis.AddFlags(fs, prefixes...)
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Enabled && o.Redis != nil {
		errs = append(errs, o.Redis.Validate()...)
	}
	return errs
}

// Complete completes the cache options with defaults.
func (o *Options) Complete() error {
	if o.Redis == nil {
		o.Redis = NewRedisOptions()
	}
	return o.Redis.Complete()
}
