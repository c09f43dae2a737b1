// Package options defines the interface every configurable component's
// options struct implements, plus the flag-name prefix helper shared by all
// of them.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." and appends a trailing "." when the
// result is non-empty, producing flag names like "store.mongo.host".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions is implemented by every component options struct.
type IOptions interface {
	// Validate checks the populated options, returning one error per
	// invalid field.
	Validate() []error

	// AddFlags registers the options' flags on fs, nested under prefixes.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
