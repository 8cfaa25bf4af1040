package models

import "time"

// ChatRequest represents an incoming chat request
type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id,omitempty"` // セッションIDで会話を紐付け
}

// ChatTurn is one message of a conversation.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// SummaryRequest 会話サマリー生成のリクエスト
type SummaryRequest struct {
	Conversation []ChatTurn `json:"conversation" binding:"required"`
}

// SatisfactionRequest carries a 1-5 satisfaction score.
type SatisfactionRequest struct {
	Score int `json:"score" binding:"required"`
}

// FAQ is a single FAQ entry.
type FAQ struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Category string   `json:"category,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// IntentResult 意図分類の結果
type IntentResult struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
	Fallback   bool              `json:"fallback"` // キーワード判定にフォールバックしたか
}

// ChatReply is the assistant's answer to one message.
type ChatReply struct {
	SessionID    string        `json:"session_id"`
	Response     string        `json:"response"`
	Intent       string        `json:"intent"`
	Confidence   float64       `json:"confidence"`
	RelevantFAQs []FAQ         `json:"relevant_faqs"`
	FAQCount     int           `json:"faq_count"`
	Provider     string        `json:"provider"`
	ResponseTime time.Duration `json:"response_time_ns"`
}

// ConversationSummary 会話メトリクスの集計結果
type ConversationSummary struct {
	TotalConversations int            `json:"total_conversations"`
	AvgResponseTime    float64        `json:"avg_response_time"` // seconds
	AvgConfidence      float64        `json:"avg_confidence"`
	AvgSatisfaction    float64        `json:"avg_satisfaction"`
	IntentDistribution map[string]int `json:"intent_distribution"`
}
