package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/pkg/llm"
	"github.com/kart-io/handbook-rag/pkg/utils/errors"
)

// 系统提示词，按语言区分。
var systemPrompts = map[string]string{
	LangDE: "Du bist ein akademischer Assistent. Antworte nur mit dem gegebenen Kontext. Wenn du nichts findest, sage es deutlich.",
	LangEN: "You are an academic assistant. Only use the context. If you can't find anything, say so.",
}

// 未找到上下文时的回答。
var nothingFound = map[string]string{
	LangDE: "Ich konnte dazu nichts im Modulhandbuch finden.",
	LangEN: "I couldn't find anything relevant in the module handbook.",
}

// NothingFound returns the localized answer for questions without context.
func NothingFound(lang string) string {
	if msg, ok := nothingFound[lang]; ok {
		return msg
	}
	return nothingFound[LangEN]
}

// SynthesizerConfig 回答生成配置。
type SynthesizerConfig struct {
	// HistoryTurns 保留的对话轮数，每轮两条消息。
	HistoryTurns int
	// Timeout 单次模型调用超时，0 表示不限制。
	Timeout time.Duration
}

// Synthesizer 调用对话模型，根据上下文生成回答。
type Synthesizer struct {
	provider llm.ChatProvider
	config   SynthesizerConfig
}

// NewSynthesizer 创建回答生成器。
func NewSynthesizer(provider llm.ChatProvider, config SynthesizerConfig) *Synthesizer {
	if config.HistoryTurns < 0 {
		config.HistoryTurns = 0
	}
	return &Synthesizer{provider: provider, config: config}
}

// Synthesize answers question from contextText in the language of the
// question. The answer is always usable: on a provider error it is the
// localized apology and the error is returned alongside for accounting.
func (s *Synthesizer) Synthesize(ctx context.Context, contextText, question string, history []llm.Message) (string, error) {
	lang := DetectLang(question)
	messages := s.BuildMessages(contextText, question, lang, history)

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	answer, err := s.provider.Chat(ctx, messages)
	if err != nil {
		logger.Errorw("answer synthesis failed", "provider", s.provider.Name(), "lang", lang, "error", err.Error())
		return errors.ErrHandbookSynthesisFailed.Message(lang), errors.ErrHandbookSynthesisFailed.WithCause(err)
	}
	return answer, nil
}

// BuildMessages 构建发送给模型的消息：系统提示、截断后的历史与当前问题。
func (s *Synthesizer) BuildMessages(contextText, question, lang string, history []llm.Message) []llm.Message {
	system, ok := systemPrompts[lang]
	if !ok {
		lang = LangEN
		system = systemPrompts[LangEN]
	}

	trimmed := TrimHistory(history, s.config.HistoryTurns)
	messages := make([]llm.Message, 0, len(trimmed)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, trimmed...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userPrompt(contextText, question, lang)})
	return messages
}

func userPrompt(contextText, question, lang string) string {
	if lang == LangDE {
		return fmt.Sprintf("Kontext:\n%s\n\nFrage: %s", contextText, question)
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)
}

// TrimHistory keeps the last turns*2 valid messages. Messages with a role other
// than user or assistant, or with blank content, are dropped first.
func TrimHistory(history []llm.Message, turns int) []llm.Message {
	valid := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		valid = append(valid, m)
	}
	limit := turns * 2
	if len(valid) > limit {
		valid = valid[len(valid)-limit:]
	}
	return valid
}
