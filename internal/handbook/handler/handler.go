// Package handler provides HTTP handlers for the handbook service.
package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/internal/handbook/biz"
	"github.com/kart-io/handbook-rag/internal/handbook/metrics"
	"github.com/kart-io/handbook-rag/pkg/llm"
	"github.com/kart-io/handbook-rag/pkg/utils/errors"
	"github.com/kart-io/handbook-rag/pkg/utils/response"
	"github.com/kart-io/handbook-rag/pkg/validator"
)

// MaxSimpleBodyBytes bounds the text/plain body of /ask-simple.
const MaxSimpleBodyBytes = 64 << 10

// RecordCounter reports how many records are currently loaded.
type RecordCounter interface {
	Len() int
}

// HandbookHandler handles handbook HTTP requests.
type HandbookHandler struct {
	service          biz.Service
	records          RecordCounter
	metrics          *metrics.HandbookMetrics
	metricsNamespace string
}

// NewHandbookHandler creates a new HandbookHandler. m may be nil.
func NewHandbookHandler(service biz.Service, records RecordCounter, m *metrics.HandbookMetrics, metricsNamespace string) *HandbookHandler {
	return &HandbookHandler{
		service:          service,
		records:          records,
		metrics:          m,
		metricsNamespace: metricsNamespace,
	}
}

// HistoryTurn is one prior chat message.
type HistoryTurn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// AskBody is the JSON body of POST /ask.
type AskBody struct {
	Question   string        `json:"question" binding:"required"`
	History    []HistoryTurn `json:"history" binding:"omitempty,dive"`
	Program    string        `json:"program" binding:"omitempty,namespace"`
	Season     string        `json:"season"`
	ExamType   string        `json:"examType"`
	MinCredits *float64      `json:"minCredits" binding:"omitempty,min=0"`
	MaxCredits *float64      `json:"maxCredits" binding:"omitempty,min=0"`
	TopK       int           `json:"top_k" binding:"omitempty,min=1,max=50"`
	Namespaces []string      `json:"namespaces" binding:"omitempty,dive,namespace"`
}

// ToRequest converts the body into a service request.
func (b *AskBody) ToRequest() *biz.AskRequest {
	history := make([]llm.Message, 0, len(b.History))
	for _, turn := range b.History {
		history = append(history, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}
	return &biz.AskRequest{
		Question:   b.Question,
		History:    history,
		Program:    b.Program,
		Season:     b.Season,
		ExamType:   b.ExamType,
		MinCredits: b.MinCredits,
		MaxCredits: b.MaxCredits,
		TopK:       b.TopK,
		Namespaces: b.Namespaces,
	}
}

// Ask answers a question with retrieval filters.
func (h *HandbookHandler) Ask(c *gin.Context) {
	var body AskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.reject(c, err)
		return
	}
	h.answer(c, body.ToRequest())
}

// AskSimple answers a question sent as a text/plain body.
func (h *HandbookHandler) AskSimple(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxSimpleBodyBytes))
	if err != nil {
		h.reject(c, err)
		return
	}
	h.answer(c, &biz.AskRequest{Question: strings.TrimSpace(string(raw))})
}

func (h *HandbookHandler) answer(c *gin.Context, req *biz.AskRequest) {
	resp, err := h.service.Ask(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// reject 记录并返回请求参数错误，校验信息按 Accept-Language 翻译。
func (h *HandbookHandler) reject(c *gin.Context, err error) {
	if h.metrics != nil {
		h.metrics.RecordRejected()
	}

	lang := response.Lang(c)
	details := validator.Binding().Translate(err, lang)
	logger.Debugw("rejected handbook request",
		"path", c.FullPath(),
		"error", details.Error(),
	)

	response.FailWithDetails(c, errors.ErrHandbookInvalidRequest.WithCause(err), details)
}

// Root reports that the service is up and lists the namespaces.
func (h *HandbookHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":    "Handbook RAG API is running",
		"namespaces": h.namespaces(),
	})
}

// Healthz reports liveness with the loaded record count.
func (h *HandbookHandler) Healthz(c *gin.Context) {
	records := 0
	if h.records != nil {
		records = h.records.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"records":    records,
		"namespaces": h.namespaces(),
	})
}

// Metrics exports the service counters in Prometheus text format.
func (h *HandbookHandler) Metrics(c *gin.Context) {
	body := ""
	if h.metrics != nil {
		body = h.metrics.Export(h.metricsNamespace, "handbook")
	}
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(body))
}

func (h *HandbookHandler) namespaces() []string {
	ns := h.service.Namespaces()
	if ns == nil {
		return []string{}
	}
	return ns
}
