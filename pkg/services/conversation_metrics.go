package services

import (
	"fmt"
	"sync"
	"time"

	"smartassist-api/pkg/models"
)

type conversationEntry struct {
	intent     string
	confidence float64
	at         time.Time
}

// ConversationTracker keeps running conversation statistics in memory.
// It is safe for concurrent use.
type ConversationTracker struct {
	mu            sync.RWMutex
	conversations []conversationEntry
	responseTimes []time.Duration
	satisfaction  []int
	now           func() time.Time
}

// NewConversationTracker 会話メトリクストラッカーを作成
func NewConversationTracker() *ConversationTracker {
	return &ConversationTracker{now: time.Now}
}

// LogConversation records one answered message.
func (t *ConversationTracker) LogConversation(intent string, confidence float64, responseTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversations = append(t.conversations, conversationEntry{intent: intent, confidence: confidence, at: t.now()})
	t.responseTimes = append(t.responseTimes, responseTime)
}

// LogSatisfaction records a 1-5 satisfaction score.
func (t *ConversationTracker) LogSatisfaction(score int) error {
	if score < 1 || score > 5 {
		return fmt.Errorf("satisfaction score must be between 1 and 5, got %d", score)
	}
	t.mu.Lock()
	t.satisfaction = append(t.satisfaction, score)
	t.mu.Unlock()
	return nil
}

// Summary returns the aggregate. Averages over nothing are 0.
func (t *ConversationTracker) Summary() models.ConversationSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := models.ConversationSummary{
		TotalConversations: len(t.conversations),
		IntentDistribution: map[string]int{},
	}
	if len(t.conversations) > 0 {
		var conf float64
		for _, c := range t.conversations {
			conf += c.confidence
			s.IntentDistribution[c.intent]++
		}
		s.AvgConfidence = conf / float64(len(t.conversations))
	}
	if len(t.responseTimes) > 0 {
		var total time.Duration
		for _, d := range t.responseTimes {
			total += d
		}
		s.AvgResponseTime = total.Seconds() / float64(len(t.responseTimes))
	}
	if len(t.satisfaction) > 0 {
		sum := 0
		for _, v := range t.satisfaction {
			sum += v
		}
		s.AvgSatisfaction = float64(sum) / float64(len(t.satisfaction))
	}
	return s
}
