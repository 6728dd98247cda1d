// Package milvusopts holds the connection and collection settings of the
// Milvus vector index.
package milvusopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/handbook-rag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the Milvus client and the handbook collection.
type Options struct {
	Address  string `json:"address" mapstructure:"address"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`

	// Collection holds every namespace; the namespace is a scalar field.
	Collection string `json:"collection" mapstructure:"collection"`
	// Dimension must match the embedding model output.
	Dimension int `json:"dimension" mapstructure:"dimension"`
	// NList and NProbe tune the IVF_FLAT index and its searches.
	NList  int `json:"nlist" mapstructure:"nlist"`
	NProbe int `json:"nprobe" mapstructure:"nprobe"`
	// Recreate drops an existing collection before use. Only handbook-index
	// honours it.
	Recreate bool `json:"recreate" mapstructure:"recreate"`

	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions returns defaults for a local Milvus standalone.
func NewOptions() *Options {
	return &Options{
		Address:    "localhost:19530",
		Database:   "default",
		Collection: "handbook_chunks",
		Dimension:  1536,
		NList:      128,
		NProbe:     16,
		Timeout:    30 * time.Second,
	}
}

// AddFlags registers the milvus.* flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus address (host:port).")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus user.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password.")
	fs.StringVar(&o.Collection, p+"collection", o.Collection, "Collection holding the handbook chunks.")
	fs.IntVar(&o.Dimension, p+"dimension", o.Dimension, "Embedding dimension of the collection.")
	fs.IntVar(&o.NList, p+"nlist", o.NList, "IVF_FLAT nlist used when the index is created.")
	fs.IntVar(&o.NProbe, p+"nprobe", o.NProbe, "IVF_FLAT nprobe used by searches.")
	fs.BoolVar(&o.Recreate, p+"recreate", o.Recreate, "Drop and recreate the collection before indexing.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Connect timeout.")
}

// Validate checks the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus.address is required"))
	}
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("milvus.collection is required"))
	}
	if o.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("milvus.dimension must be positive"))
	}
	if o.NList <= 0 || o.NProbe <= 0 || o.NProbe > o.NList {
		errs = append(errs, fmt.Errorf("milvus.nprobe must be within [1, nlist] and nlist positive"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus.timeout must be positive"))
	}
	return errs
}
