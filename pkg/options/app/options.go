// Package app defines the options contract consumed by pkg/infra/app.
package app

import cliflag "github.com/kart-io/handbook-rag/pkg/app/cliflag"

// CliOptions abstracts configuration options for reading parameters from the
// command line and configuration files.
type CliOptions interface {
	// Flags returns the flag sets grouped by section.
	Flags() cliflag.NamedFlagSets
	// Complete fills in defaults that depend on other options.
	Complete() error
	// Validate checks the completed options.
	Validate() error
}
