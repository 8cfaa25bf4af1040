package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationTrackerSummary(t *testing.T) {
	tracker := NewConversationTracker()
	empty := tracker.Summary()
	assert.Zero(t, empty.TotalConversations)
	assert.Zero(t, empty.AvgSatisfaction)
	assert.Empty(t, empty.IntentDistribution)

	tracker.LogConversation("data_inquiry", 0.9, 2*time.Second)
	tracker.LogConversation("data_inquiry", 0.7, 1*time.Second)
	tracker.LogConversation("general_inquiry", 0.5, 3*time.Second)
	require.NoError(t, tracker.LogSatisfaction(5))
	require.NoError(t, tracker.LogSatisfaction(2))

	s := tracker.Summary()
	assert.Equal(t, 3, s.TotalConversations)
	assert.InDelta(t, 0.7, s.AvgConfidence, 1e-12)
	assert.InDelta(t, 2.0, s.AvgResponseTime, 1e-12)
	assert.InDelta(t, 3.5, s.AvgSatisfaction, 1e-12)
	assert.Equal(t, map[string]int{"data_inquiry": 2, "general_inquiry": 1}, s.IntentDistribution)
}

func TestConversationTrackerRejectsOutOfRangeScores(t *testing.T) {
	tracker := NewConversationTracker()
	assert.Error(t, tracker.LogSatisfaction(0))
	assert.Error(t, tracker.LogSatisfaction(6))
	assert.Zero(t, tracker.Summary().AvgSatisfaction)
}

func TestConversationTrackerConcurrentUse(t *testing.T) {
	tracker := NewConversationTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.LogConversation("x", 1, time.Millisecond)
			_ = tracker.Summary()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tracker.Summary().TotalConversations)
}
