package http

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.Empty(t, NewOptions().Validate())

	o := NewOptions()
	o.Addr = "8000"
	o.Mode = "prod"
	o.MaxBodyBytes = -1
	assert.Len(t, o.Validate(), 3)
}

func TestAddFlags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--http.addr=127.0.0.1:9000", "--http.max-body-bytes=4096"}))
	assert.Equal(t, "127.0.0.1:9000", o.Addr)
	assert.EqualValues(t, 4096, o.MaxBodyBytes)
}
