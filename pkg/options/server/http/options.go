// Package http holds the listener settings of the handbook HTTP API.
package http

import (
	"fmt"
	"net"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/kart-io/handbook-rag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the HTTP listener and gin engine.
type Options struct {
	Addr         string        `json:"addr" mapstructure:"addr"`
	Mode         string        `json:"mode" mapstructure:"mode"`
	ReadTimeout  time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	IdleTimeout  time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	// MaxBodyBytes caps request bodies; larger bodies fail to bind.
	MaxBodyBytes int64 `json:"max-body-bytes" mapstructure:"max-body-bytes"`
	// CORSAllowOrigins is the CORS origin allow-list, "*" allows any origin.
	CORSAllowOrigins []string `json:"cors-allow-origins" mapstructure:"cors-allow-origins"`
}

// NewOptions returns the listener defaults. WriteTimeout leaves room for a
// slow chat completion.
func NewOptions() *Options {
	return &Options{
		Addr:             ":8000",
		Mode:             gin.ReleaseMode,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     90 * time.Second,
		IdleTimeout:      60 * time.Second,
		MaxBodyBytes:     1 << 20,
		CORSAllowOrigins: []string{"*"},
	}
}

// AddFlags registers the http.* flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "http."
	fs.StringVar(&o.Addr, p+"addr", o.Addr, "Listen address of the HTTP API (host:port).")
	fs.StringVar(&o.Mode, p+"mode", o.Mode, "Gin mode: release, debug or test.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Maximum time to read a request.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Maximum time to write a response.")
	fs.DurationVar(&o.IdleTimeout, p+"idle-timeout", o.IdleTimeout, "Keep-alive idle timeout.")
	fs.Int64Var(&o.MaxBodyBytes, p+"max-body-bytes", o.MaxBodyBytes, "Maximum request body size in bytes, 0 disables the limit.")
	fs.StringSliceVar(&o.CORSAllowOrigins, p+"cors-allow-origins", o.CORSAllowOrigins, "Origins allowed by CORS.")
}

// Complete is a no-op.
func (o *Options) Complete() error { return nil }

// Validate checks the listener settings.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if _, _, err := net.SplitHostPort(o.Addr); err != nil {
		errs = append(errs, fmt.Errorf("http.addr %q: %w", o.Addr, err))
	}
	switch o.Mode {
	case gin.ReleaseMode, gin.DebugMode, gin.TestMode:
	default:
		errs = append(errs, fmt.Errorf("http.mode %q is not one of release, debug, test", o.Mode))
	}
	if o.ReadTimeout <= 0 || o.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.read-timeout and http.write-timeout must be positive"))
	}
	if o.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("http.max-body-bytes must not be negative"))
	}
	if len(o.CORSAllowOrigins) == 0 {
		errs = append(errs, fmt.Errorf("http.cors-allow-origins must list at least one origin"))
	}
	return errs
}
