// Package milvusopts configures the Milvus connection used by the milvus
// vector-graph store backend.
package milvusopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/agentmem/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options is the Milvus client connection configuration.
type Options struct {
	// Address is the Milvus server address (host:port).
	Address string `json:"address" mapstructure:"address"`

	// Database selects the Milvus database.
	Database string `json:"database" mapstructure:"database"`

	// Username and Password authenticate when the server requires it.
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`

	// Timeout bounds connection establishment and collection operations.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// PoolSize is the gRPC connection pool size.
	PoolSize int `json:"pool-size" mapstructure:"pool-size"`
}

// NewOptions returns local-instance defaults.
func NewOptions() *Options {
	return &Options{
		Address:  "localhost:19530",
		Database: "default",
		Timeout:  30 * time.Second,
		PoolSize: 10,
	}
}

// AddFlags registers the Milvus flags on fs under prefixes.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	join := options.Join(prefixes...)
	fs.StringVar(&o.Address, join+"milvus.address", o.Address, "Milvus server address (host:port).")
	fs.StringVar(&o.Database, join+"milvus.database", o.Database, "Milvus database name.")
	fs.StringVar(&o.Username, join+"milvus.username", o.Username, "Milvus username for authentication.")
	fs.StringVar(&o.Password, join+"milvus.password", o.Password, "Milvus password for authentication.")
	fs.DurationVar(&o.Timeout, join+"milvus.timeout", o.Timeout, "Connection and operation timeout.")
	fs.IntVar(&o.PoolSize, join+"milvus.pool-size", o.PoolSize, "Connection pool size.")
}

// Validate checks the populated options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus address is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus timeout must be positive"))
	}
	return errs
}
