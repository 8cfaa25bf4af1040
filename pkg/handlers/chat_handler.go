package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"smartassist-api/pkg/models"
	"smartassist-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChatHandler はチャット関連のリクエストを処理します
type ChatHandler struct {
	assistant  *services.AssistantService
	tracker    *services.ConversationTracker
	monitoring *services.MonitoringService
	logger     zerolog.Logger
}

// NewChatHandler は新しいChatHandlerを生成します
func NewChatHandler(assistant *services.AssistantService, tracker *services.ConversationTracker, monitoring *services.MonitoringService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		assistant:  assistant,
		tracker:    tracker,
		monitoring: monitoring,
		logger:     logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Chat はユーザーのメッセージに応答します
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無効なリクエストです: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "メッセージが空です"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	reply, err := h.assistant.Respond(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("chat response failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "応答の生成に失敗しました: " + err.Error()})
		return
	}

	h.tracker.LogConversation(reply.Intent, reply.Confidence, reply.ResponseTime)
	if h.monitoring != nil {
		h.monitoring.RecordChat(reply.Intent, reply.Provider, reply.ResponseTime)
	}
	c.JSON(http.StatusOK, reply)
}

// Summary generates a short summary of a conversation.
func (h *ChatHandler) Summary(c *gin.Context) {
	var req models.SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無効なリクエストです: " + err.Error()})
		return
	}
	if len(req.Conversation) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "会話が空です"})
		return
	}

	summary, err := h.assistant.Summarize(c.Request.Context(), req.Conversation)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// Satisfaction records a 1-5 satisfaction score.
func (h *ChatHandler) Satisfaction(c *gin.Context) {
	var req models.SatisfactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無効なリクエストです: " + err.Error()})
		return
	}
	if err := h.tracker.LogSatisfaction(req.Score); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.monitoring != nil {
		h.monitoring.RecordSatisfaction(req.Score)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Metrics returns the aggregated conversation metrics.
func (h *ChatHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"conversations":      h.tracker.Summary(),
		"provider":           h.assistant.ProviderName(),
		"provider_available": h.assistant.ProviderAvailable(),
		"faq_count":          h.assistant.FAQs().Count(),
		"faq_categories":     h.assistant.FAQs().Categories(),
	})
}

// SearchFAQs returns the best keyword matches for ?q=.
func (h *ChatHandler) SearchFAQs(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "検索クエリ(q)が必要です"})
		return
	}
	topK, err := strconv.Atoi(c.DefaultQuery("top_k", "3"))
	if err != nil || topK <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must be a positive integer"})
		return
	}
	results := h.assistant.FAQs().Search(query, topK)
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}
