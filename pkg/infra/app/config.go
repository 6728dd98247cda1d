package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envRef matches ${VAR} and $VAR references inside config values.
var envRef = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// configLoader fills options from a YAML file, the environment and flags.
// Each loader owns its viper instance so two commands in one process do not
// share state.
type configLoader struct {
	v    *viper.Viper
	name string
	file string
}

func newConfigLoader(name, file string) *configLoader {
	return &configLoader{v: viper.New(), name: name, file: file}
}

func (l *configLoader) load(flags *pflag.FlagSet, target any) error {
	if err := l.readFile(); err != nil {
		return err
	}
	l.expandEnv()

	l.v.SetEnvPrefix(EnvPrefix(l.name))
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()

	// 绑定 flag 默认值，使环境变量覆盖能到达 Unmarshal
	if err := l.v.BindPFlags(flags); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) { changed[f.Name] = f.Value.String() })

	if err := l.v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 显式设置的 flag 优先级最高
	for name, val := range changed {
		if err := flags.Set(name, val); err != nil {
			return fmt.Errorf("failed to re-apply flag %s: %w", name, err)
		}
	}
	return nil
}

func (l *configLoader) readFile() error {
	if l.file != "" {
		l.v.SetConfigFile(l.file)
	} else {
		l.v.SetConfigName(l.name)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("./configs")
		l.v.AddConfigPath(filepath.Join(os.Getenv("HOME"), "."+l.name))
		l.v.AddConfigPath("/etc/" + l.name)
	}

	err := l.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// expandEnv replaces environment references in string values. Unset
// variables are left as written.
func (l *configLoader) expandEnv() {
	for _, key := range l.v.AllKeys() {
		s, ok := l.v.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envRef.ReplaceAllStringFunc(s, func(match string) string {
			name := strings.TrimPrefix(match, "$")
			name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
			if val, ok := os.LookupEnv(name); ok && val != "" {
				return val
			}
			return match
		})
		if expanded != s {
			l.v.Set(key, expanded)
		}
	}
}

// EnvPrefix returns the environment variable prefix for an application name,
// e.g. "handbook-rag" becomes "HANDBOOK_RAG".
func EnvPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
