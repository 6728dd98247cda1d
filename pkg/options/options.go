// Package options holds the option groups of the handbook commands. Every
// group registers its flags under its own dotted prefix, e.g. "search.top-k",
// matching the keys of the YAML config file.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group.
type IOptions interface {
	// Validate returns every problem found, nil when the group is usable.
	Validate() []error

	// AddFlags registers the group's flags, optionally under extra prefixes.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join builds a flag prefix from prefixes: Join("embedding") is
// "embedding.", Join() is "".
func Join(prefixes ...string) string {
	p := strings.Join(prefixes, ".")
	if p == "" {
		return ""
	}
	return p + "."
}
