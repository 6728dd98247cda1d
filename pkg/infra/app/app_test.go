package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cliflag "github.com/kart-io/handbook-rag/pkg/app/cliflag"
)

type searchOpts struct {
	TopK    int           `mapstructure:"top-k"`
	Timeout time.Duration `mapstructure:"query-timeout"`
}

type testOptions struct {
	Search    searchOpts `mapstructure:"search"`
	completed bool
}

func (o *testOptions) Flags() (fss cliflag.NamedFlagSets) {
	fs := fss.FlagSet("search")
	fs.IntVar(&o.Search.TopK, "search.top-k", 8, "top k")
	fs.DurationVar(&o.Search.Timeout, "search.query-timeout", 10*time.Second, "timeout")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error { return nil }

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "HANDBOOK_RAG", EnvPrefix("handbook-rag"))
	assert.Equal(t, "HANDBOOK_INDEX", EnvPrefix("handbook-index"))
}

func TestRunLoadsConfigFileAndFlagsWin(t *testing.T) {

	dir := t.TempDir()
	cfg := filepath.Join(dir, "handbook-rag.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("search:\n  top-k: 12\n  query-timeout: 3s\n"), 0o600))

	opts := &testOptions{}
	ran := false
	a := NewApp(
		WithName("handbook-rag"),
		WithOptions(opts),
		WithNoVersion(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)
	cmd := a.Command()
	cmd.SetArgs([]string{"--config", cfg, "--search.query-timeout", "5s"})

	require.NoError(t, cmd.Execute())
	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, 12, opts.Search.TopK)
	assert.Equal(t, 5*time.Second, opts.Search.Timeout)
}

func TestRunReadsEnvironment(t *testing.T) {
	t.Setenv("HANDBOOK_RAG_SEARCH_TOP_K", "21")
	t.Chdir(t.TempDir())

	opts := &testOptions{}
	a := NewApp(WithName("handbook-rag"), WithOptions(opts), WithNoVersion())
	a.Command().SetArgs([]string{})

	require.NoError(t, a.Command().Execute())
	assert.Equal(t, 21, opts.Search.TopK)
}

func TestConfigExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("HB_TEST_TOPK", "17")
	t.Setenv("HB_TEST_TIMEOUT", "4s")

	dir := t.TempDir()
	cfg := filepath.Join(dir, "handbook-index.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("search:\n  top-k: ${HB_TEST_TOPK}\n  query-timeout: $HB_TEST_TIMEOUT\n"), 0o600))

	opts := &testOptions{}
	a := NewApp(WithName("handbook-index"), WithOptions(opts), WithNoVersion())
	a.Command().SetArgs([]string{"-c", cfg})

	require.NoError(t, a.Command().Execute())
	assert.Equal(t, 17, opts.Search.TopK)
	assert.Equal(t, 4*time.Second, opts.Search.Timeout)
}

func TestRejectsPositionalArgs(t *testing.T) {
	a := NewApp(WithName("handbook-rag"), WithOptions(&testOptions{}), WithNoVersion())
	a.Command().SetArgs([]string{"extra"})
	a.Command().SilenceErrors = true

	assert.Error(t, a.Command().Execute())
}
