// Package handbook provides the retrieval pipeline options of handbook-rag.
package handbook

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/handbook-rag/pkg/options"
)

var (
	_ options.IOptions = (*RecordsOptions)(nil)
	_ options.IOptions = (*IndexOptions)(nil)
	_ options.IOptions = (*SearchOptions)(nil)
	_ options.IOptions = (*ContextOptions)(nil)
	_ options.IOptions = (*AnswerOptions)(nil)
	_ options.IOptions = (*ChatLogOptions)(nil)
)

// RecordsOptions 原始记录文件位置与热加载配置。
type RecordsOptions struct {
	// MergedDir 递归读取其中的 *.jsonl 模块手册文件。
	MergedDir string `json:"merged-dir" mapstructure:"merged-dir"`

	// WebDir 读取其中的 *_web.json 网页文件（不递归）。
	WebDir string `json:"web-dir" mapstructure:"web-dir"`

	// Watch 是否监听目录变化并重新加载。
	Watch bool `json:"watch" mapstructure:"watch"`

	// Debounce 文件事件合并间隔。
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
}

// NewRecordsOptions 创建默认记录配置。
func NewRecordsOptions() *RecordsOptions {
	return &RecordsOptions{
		MergedDir: "data/merged",
		WebDir:    "data/processed_web",
		Debounce:  2 * time.Second,
	}
}

// AddFlags adds flags for record options to the specified FlagSet.
func (o *RecordsOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.MergedDir, p+"records.merged-dir", o.MergedDir, "Directory searched recursively for merged handbook *.jsonl files.")
	fs.StringVar(&o.WebDir, p+"records.web-dir", o.WebDir, "Directory holding *_web.json files.")
	fs.BoolVar(&o.Watch, p+"records.watch", o.Watch, "Reload records when the directories change.")
	fs.DurationVar(&o.Debounce, p+"records.debounce", o.Debounce, "Quiet period before a reload is triggered.")
}

// Validate validates the record options.
func (o *RecordsOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.MergedDir == "" && o.WebDir == "" {
		errs = append(errs, fmt.Errorf("records: at least one of merged-dir, web-dir is required"))
	}
	if o.Watch && o.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("records.debounce must be positive when watch is enabled"))
	}
	return errs
}

// 向量索引后端。
const (
	IndexBackendMilvus = "milvus"
	IndexBackendMemory = "memory"
)

// IndexOptions 向量索引配置。
type IndexOptions struct {
	// Backend 索引后端（milvus, memory）。
	Backend string `json:"backend" mapstructure:"backend"`

	// BatchSize 索引时每批嵌入与写入的记录数。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`

	// Workers 并发索引的命名空间数。
	Workers int `json:"workers" mapstructure:"workers"`
}

// NewIndexOptions 创建默认索引配置。
func NewIndexOptions() *IndexOptions {
	return &IndexOptions{
		Backend:   IndexBackendMilvus,
		BatchSize: 100,
		Workers:   4,
	}
}

// AddFlags adds flags for index options to the specified FlagSet.
func (o *IndexOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Backend, p+"index.backend", o.Backend, "Vector index backend (milvus, memory).")
	fs.IntVar(&o.BatchSize, p+"index.batch-size", o.BatchSize, "Records embedded and upserted per batch.")
	fs.IntVar(&o.Workers, p+"index.workers", o.Workers, "Namespaces indexed concurrently.")
}

// Validate validates the index options.
func (o *IndexOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Backend != IndexBackendMilvus && o.Backend != IndexBackendMemory {
		errs = append(errs, fmt.Errorf("index.backend %q is not one of milvus, memory", o.Backend))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("index.batch-size must be positive"))
	}
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("index.workers must be positive"))
	}
	return errs
}

// SearchOptions 命名空间检索配置。
type SearchOptions struct {
	// TopK 未指定时的默认返回数量。
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MaxTopK 请求可指定的最大返回数量。
	MaxTopK int `json:"max-top-k" mapstructure:"max-top-k"`

	// HomeBoost 本专业命名空间的得分乘数，必须 >= 1。
	HomeBoost float64 `json:"home-boost" mapstructure:"home-boost"`

	// QueryTimeout 单个命名空间查询的超时。
	QueryTimeout time.Duration `json:"query-timeout" mapstructure:"query-timeout"`

	// Workers 并发查询命名空间的协程池大小。
	Workers int `json:"workers" mapstructure:"workers"`
}

// NewSearchOptions 创建默认检索配置。
func NewSearchOptions() *SearchOptions {
	return &SearchOptions{
		TopK:         8,
		MaxTopK:      50,
		HomeBoost:    1.05,
		QueryTimeout: 10 * time.Second,
		Workers:      16,
	}
}

// AddFlags adds flags for search options to the specified FlagSet.
func (o *SearchOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.TopK, p+"search.top-k", o.TopK, "Default number of matches per question.")
	fs.IntVar(&o.MaxTopK, p+"search.max-top-k", o.MaxTopK, "Upper bound for a requested top_k.")
	fs.Float64Var(&o.HomeBoost, p+"search.home-boost", o.HomeBoost, "Score multiplier for namespaces of the asking program (>= 1).")
	fs.DurationVar(&o.QueryTimeout, p+"search.query-timeout", o.QueryTimeout, "Timeout of a single namespace query.")
	fs.IntVar(&o.Workers, p+"search.workers", o.Workers, "Worker pool size for namespace fan-out.")
}

// Validate validates the search options.
func (o *SearchOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("search.top-k must be positive"))
	}
	if o.MaxTopK < o.TopK {
		errs = append(errs, fmt.Errorf("search.max-top-k must be >= search.top-k"))
	}
	if o.HomeBoost < 1 {
		errs = append(errs, fmt.Errorf("search.home-boost must be >= 1, got %v", o.HomeBoost))
	}
	if o.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("search.query-timeout must be positive"))
	}
	if o.Workers <= 0 {
		errs = append(errs, fmt.Errorf("search.workers must be positive"))
	}
	return errs
}

// ContextOptions 上下文组装配置。
type ContextOptions struct {
	// ScoreThreshold 低于该得分的匹配被丢弃。
	ScoreThreshold float64 `json:"score-threshold" mapstructure:"score-threshold"`

	// PerModuleCap 每个分组中同一模块最多的块数。
	PerModuleCap int `json:"per-module-cap" mapstructure:"per-module-cap"`

	// MaxChunks 每个分组最多的块数。
	MaxChunks int `json:"max-chunks" mapstructure:"max-chunks"`

	// MaxChars 上下文最大字符数（按 rune 计）。
	MaxChars int `json:"max-chars" mapstructure:"max-chars"`
}

// NewContextOptions 创建默认上下文配置。
func NewContextOptions() *ContextOptions {
	return &ContextOptions{
		ScoreThreshold: 0.2,
		PerModuleCap:   2,
		MaxChunks:      6,
		MaxChars:       9000,
	}
}

// AddFlags adds flags for context options to the specified FlagSet.
func (o *ContextOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.Float64Var(&o.ScoreThreshold, p+"context.score-threshold", o.ScoreThreshold, "Minimum match score kept in the context.")
	fs.IntVar(&o.PerModuleCap, p+"context.per-module-cap", o.PerModuleCap, "Maximum blocks per module within a group.")
	fs.IntVar(&o.MaxChunks, p+"context.max-chunks", o.MaxChunks, "Maximum blocks per group.")
	fs.IntVar(&o.MaxChars, p+"context.max-chars", o.MaxChars, "Hard character limit of the assembled context.")
}

// Validate validates the context options.
func (o *ContextOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.PerModuleCap <= 0 {
		errs = append(errs, fmt.Errorf("context.per-module-cap must be positive"))
	}
	if o.MaxChunks <= 0 {
		errs = append(errs, fmt.Errorf("context.max-chunks must be positive"))
	}
	if o.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("context.max-chars must be positive"))
	}
	return errs
}

// AnswerOptions 回答生成配置。
type AnswerOptions struct {
	// HistoryTurns 保留的对话轮数，每轮两条消息。
	HistoryTurns int `json:"history-turns" mapstructure:"history-turns"`
}

// NewAnswerOptions 创建默认回答配置。
func NewAnswerOptions() *AnswerOptions {
	return &AnswerOptions{HistoryTurns: 3}
}

// AddFlags adds flags for answer options to the specified FlagSet.
func (o *AnswerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.HistoryTurns, options.Join(prefixes...)+"answer.history-turns", o.HistoryTurns, "Conversation turns forwarded to the chat model.")
}

// Validate validates the answer options.
func (o *AnswerOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.HistoryTurns < 0 {
		return []error{fmt.Errorf("answer.history-turns must not be negative")}
	}
	return nil
}

// 对话日志后端。
const (
	ChatLogBackendJSONL  = "jsonl"
	ChatLogBackendSQLite = "sqlite"
	ChatLogBackendNone   = "none"
)

// ChatLogOptions 对话日志配置。
type ChatLogOptions struct {
	// Backend 日志后端（jsonl, sqlite, none）。
	Backend string `json:"backend" mapstructure:"backend"`

	// Path JSONL 文件路径。
	Path string `json:"path" mapstructure:"path"`

	// MaxSizeMB 单个文件轮转前的最大大小。
	MaxSizeMB int `json:"max-size-mb" mapstructure:"max-size-mb"`

	// MaxBackups 保留的历史文件数。
	MaxBackups int `json:"max-backups" mapstructure:"max-backups"`

	// MaxAgeDays 历史文件保留天数。
	MaxAgeDays int `json:"max-age-days" mapstructure:"max-age-days"`

	// DSN SQLite 数据源。
	DSN string `json:"dsn" mapstructure:"dsn"`
}

// NewChatLogOptions 创建默认对话日志配置。
func NewChatLogOptions() *ChatLogOptions {
	return &ChatLogOptions{
		Backend:    ChatLogBackendJSONL,
		Path:       "logs/chat_log.jsonl",
		MaxSizeMB:  50,
		MaxBackups: 10,
		MaxAgeDays: 90,
		DSN:        "logs/chat_log.db",
	}
}

// AddFlags adds flags for chat log options to the specified FlagSet.
func (o *ChatLogOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Backend, p+"chatlog.backend", o.Backend, "Chat log backend (jsonl, sqlite, none).")
	fs.StringVar(&o.Path, p+"chatlog.path", o.Path, "JSONL chat log file.")
	fs.IntVar(&o.MaxSizeMB, p+"chatlog.max-size-mb", o.MaxSizeMB, "Size in MB before the JSONL log is rotated.")
	fs.IntVar(&o.MaxBackups, p+"chatlog.max-backups", o.MaxBackups, "Rotated JSONL files to keep.")
	fs.IntVar(&o.MaxAgeDays, p+"chatlog.max-age-days", o.MaxAgeDays, "Days to keep rotated JSONL files.")
	fs.StringVar(&o.DSN, p+"chatlog.dsn", o.DSN, "SQLite data source for the sqlite backend.")
}

// Validate validates the chat log options.
func (o *ChatLogOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	switch o.Backend {
	case ChatLogBackendJSONL:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("chatlog.path is required for the jsonl backend"))
		}
	case ChatLogBackendSQLite:
		if o.DSN == "" {
			errs = append(errs, fmt.Errorf("chatlog.dsn is required for the sqlite backend"))
		}
	case ChatLogBackendNone:
	default:
		errs = append(errs, fmt.Errorf("chatlog.backend %q is not one of jsonl, sqlite, none", o.Backend))
	}
	return errs
}
