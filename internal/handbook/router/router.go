// Package router provides handbook service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/handbook-rag/internal/handbook/handler"
)

// Register registers the handbook service routes.
func Register(engine *gin.Engine, h *handler.HandbookHandler) {
	logger.Info("Registering handbook routes...")

	engine.GET("/", h.Root)
	engine.GET("/healthz", h.Healthz)
	engine.GET("/metrics", h.Metrics)

	engine.POST("/ask", h.Ask)
	engine.POST("/ask-simple", h.AskSimple)

	logger.Info("HTTP routes registered")
}
