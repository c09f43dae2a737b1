package mongodb

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// passwordEnvVar is the environment variable Complete falls back to when no
// password arrived through flags or the config file.
const passwordEnvVar = "MONGODB_PASSWORD"

// Options configures the MongoDB client backing the profile store. Either URI
// is set (and used verbatim) or the individual host/credential fields are
// assembled into one by BuildURI.
type Options struct {
	URI      string `json:"uri" mapstructure:"uri"`
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`

	MaxPoolSize     uint64        `json:"max-pool-size" mapstructure:"max-pool-size"`
	MinPoolSize     uint64        `json:"min-pool-size" mapstructure:"min-pool-size"`
	MaxConnIdleTime time.Duration `json:"max-conn-idle-time" mapstructure:"max-conn-idle-time"`

	ConnectTimeout         time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SocketTimeout          time.Duration `json:"socket-timeout" mapstructure:"socket-timeout"`
	ServerSelectionTimeout time.Duration `json:"server-selection-timeout" mapstructure:"server-selection-timeout"`

	ReplicaSet string `json:"replica-set" mapstructure:"replica-set"`
	AuthSource string `json:"auth-source" mapstructure:"auth-source"`
	Direct     bool   `json:"direct" mapstructure:"direct"`
}

// NewOptions returns Options with connection-pool and timeout defaults suited
// to a co-located development MongoDB.
func NewOptions() *Options {
	return &Options{
		Host:                   "127.0.0.1",
		Port:                   27017,
		MaxPoolSize:            100,
		MinPoolSize:            10,
		MaxConnIdleTime:        5 * time.Minute,
		ConnectTimeout:         10 * time.Second,
		SocketTimeout:          30 * time.Second,
		ServerSelectionTimeout: 30 * time.Second,
		AuthSource:             "admin",
	}
}

// MarshalJSON redacts the password so Options can be logged whole.
func (o *Options) MarshalJSON() ([]byte, error) {
	type plain Options
	out := struct {
		plain
		Password string `json:"password"`
	}{plain: plain(*o)}
	if o.Password != "" {
		out.Password = "[REDACTED]"
	}
	return json.Marshal(out)
}

// String returns a loggable one-line summary with the password redacted.
func (o *Options) String() string {
	password := ""
	if o.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("MongoDB{host=%s, port=%d, user=%s, password=%s, database=%s}",
		o.Host, o.Port, o.Username, password, o.Database)
}

// Complete reads the password from MONGODB_PASSWORD when it was not set via
// flag or config file. This is the only place the package touches the process
// environment.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv(passwordEnvVar)
	}
	return nil
}

// Validate checks the options. A password passed on the command line (rather
// than the environment) is legal but warned about, since argv leaks into
// process listings.
func (o *Options) Validate() error {
	if o.Password != "" && os.Getenv(passwordEnvVar) == "" {
		fmt.Fprintf(os.Stderr, "WARNING: passing the MongoDB password via CLI is insecure; prefer %s\n", passwordEnvVar)
	}
	return nil
}

// AddFlags registers the MongoDB flags under namePrefix.
func (o *Options) AddFlags(fs *pflag.FlagSet, namePrefix string) {
	fs.StringVar(&o.URI, namePrefix+"uri", o.URI, "MongoDB URI; overrides host/port/credential flags when set.")
	fs.StringVar(&o.Host, namePrefix+"host", o.Host, "MongoDB host.")
	fs.IntVar(&o.Port, namePrefix+"port", o.Port, "MongoDB port.")
	fs.StringVar(&o.Username, namePrefix+"username", o.Username, "MongoDB username.")
	fs.StringVar(&o.Password, namePrefix+"password", o.Password, "MongoDB password (prefer the "+passwordEnvVar+" environment variable).")
	fs.StringVar(&o.Database, namePrefix+"database", o.Database, "MongoDB database holding the profile collections.")
	fs.Uint64Var(&o.MaxPoolSize, namePrefix+"max-pool-size", o.MaxPoolSize, "Connection pool upper bound.")
	fs.Uint64Var(&o.MinPoolSize, namePrefix+"min-pool-size", o.MinPoolSize, "Connection pool lower bound.")
	fs.DurationVar(&o.MaxConnIdleTime, namePrefix+"max-conn-idle-time", o.MaxConnIdleTime, "Idle time before a pooled connection is closed.")
	fs.DurationVar(&o.ConnectTimeout, namePrefix+"connect-timeout", o.ConnectTimeout, "Connection establishment deadline.")
	fs.DurationVar(&o.SocketTimeout, namePrefix+"socket-timeout", o.SocketTimeout, "Per-operation socket deadline.")
	fs.DurationVar(&o.ServerSelectionTimeout, namePrefix+"server-selection-timeout", o.ServerSelectionTimeout, "Server selection deadline.")
	fs.StringVar(&o.ReplicaSet, namePrefix+"replica-set", o.ReplicaSet, "Replica set name.")
	fs.StringVar(&o.AuthSource, namePrefix+"auth-source", o.AuthSource, "Authentication database.")
	fs.BoolVar(&o.Direct, namePrefix+"direct", o.Direct, "Connect directly to the named host, bypassing topology discovery.")
	_ = fs.MarkDeprecated(namePrefix+"password", "use the "+passwordEnvVar+" environment variable")
}
