package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"smartassist-api/pkg/llm"
	"smartassist-api/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider answers from a script keyed by the request's system prompt.
type fakeProvider struct {
	answers  map[string]string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeProvider) Name() string    { return "fake" }
func (f *fakeProvider) Available() bool { return true }
func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.answers[req.System], nil
}

func newTestAssistant(p llm.Provider) *AssistantService {
	return NewAssistantService(p, NewFAQService(testFAQs(), zerolog.Nop()), models.AssistantPrompts{}, zerolog.Nop())
}

func TestKeywordIntentFallback(t *testing.T) {
	testCases := []struct {
		message  string
		expected string
		conf     float64
	}{
		{"How much is a 2GB bundle?", "data_inquiry", 0.8},
		{"my recharge failed", "recharge_issue", 0.8},
		{"I want to top up", "recharge_issue", 0.8},
		{"no signal at home", "network_complaint", 0.8},
		{"hello there", "general_inquiry", 0.6},
	}
	a := newTestAssistant(nil)
	for _, tc := range testCases {
		got := a.ClassifyIntent(context.Background(), tc.message)
		assert.Equal(t, tc.expected, got.Intent, tc.message)
		assert.Equal(t, tc.conf, got.Confidence, tc.message)
		assert.True(t, got.Fallback)
	}
}

func TestClassifyIntentFromProvider(t *testing.T) {
	prompts := DefaultAssistantPrompts()
	fake := &fakeProvider{answers: map[string]string{
		prompts.IntentSystem: "```json\n{\"intent\": \"roaming_inquiry\", \"confidence\": 0.92, \"entities\": {\"country\": \"Ghana\", \"days\": 3}}\n```",
	}}
	got := newTestAssistant(fake).ClassifyIntent(context.Background(), "roaming in Ghana")
	assert.Equal(t, "roaming_inquiry", got.Intent)
	assert.Equal(t, 0.92, got.Confidence)
	assert.Equal(t, map[string]string{"country": "Ghana", "days": "3"}, got.Entities)
	assert.False(t, got.Fallback)
	require.Len(t, fake.requests, 1)
	assert.Contains(t, fake.requests[0].Prompt, "porting_request")
}

func TestClassifyIntentFallsBackOnBadAnswers(t *testing.T) {
	prompts := DefaultAssistantPrompts()
	for _, raw := range []string{"not json", `{"intent":"weather","confidence":0.9}`} {
		fake := &fakeProvider{answers: map[string]string{prompts.IntentSystem: raw}}
		got := newTestAssistant(fake).ClassifyIntent(context.Background(), "my data is gone")
		assert.Equal(t, "data_inquiry", got.Intent, raw)
		assert.True(t, got.Fallback, raw)
	}

	failing := &fakeProvider{err: errors.New("boom")}
	got := newTestAssistant(failing).ClassifyIntent(context.Background(), "signal")
	assert.Equal(t, "network_complaint", got.Intent)
}

func TestRespondWithProvider(t *testing.T) {
	prompts := DefaultAssistantPrompts()
	fake := &fakeProvider{answers: map[string]string{
		prompts.IntentSystem: `{"intent":"data_inquiry","confidence":0.9,"entities":{}}`,
		prompts.Persona:      "Here is how to buy a bundle.",
	}}
	reply, err := newTestAssistant(fake).Respond(context.Background(), "s-1", "data bundle please")
	require.NoError(t, err)

	assert.Equal(t, "s-1", reply.SessionID)
	assert.Equal(t, "Here is how to buy a bundle.", reply.Response)
	assert.Equal(t, "data_inquiry", reply.Intent)
	assert.Equal(t, "fake", reply.Provider)
	assert.Equal(t, len(reply.RelevantFAQs), reply.FAQCount)
	require.NotEmpty(t, reply.RelevantFAQs)
	assert.Equal(t, "data", reply.RelevantFAQs[0].Category)

	require.Len(t, fake.requests, 2)
	assert.True(t, strings.Contains(fake.requests[1].Prompt, "FAQ: How do I buy a data bundle?"))
}

func TestRespondWithoutProvider(t *testing.T) {
	a := newTestAssistant(nil)
	reply, err := a.Respond(context.Background(), "", "how do I recharge airtime")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.SessionID)
	assert.Equal(t, "Use a voucher or the mobile app.", reply.Response)
	assert.Equal(t, llm.ProviderNone, reply.Provider)

	reply, err = a.Respond(context.Background(), "", "qwerty")
	require.NoError(t, err)
	assert.Equal(t, DefaultAssistantPrompts().Unconfigured, reply.Response)

	_, err = a.Respond(context.Background(), "", "  ")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	conversation := []models.ChatTurn{
		{Role: "user", Content: "My data ran out"},
		{Role: "assistant", Content: "You can buy a new bundle"},
	}

	_, err := newTestAssistant(nil).Summarize(context.Background(), conversation)
	assert.ErrorIs(t, err, llm.ErrProviderNotConfigured)

	prompts := DefaultAssistantPrompts()
	fake := &fakeProvider{answers: map[string]string{prompts.SummarySystem: " Customer ran out of data. \n"}}
	summary, err := newTestAssistant(fake).Summarize(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, "Customer ran out of data.", summary)
	assert.Contains(t, fake.requests[0].Prompt, "user: My data ran out")

	_, err = newTestAssistant(fake).Summarize(context.Background(), nil)
	assert.Error(t, err)
}

func TestWithDefaultsKeepsOverrides(t *testing.T) {
	p := withDefaults(models.AssistantPrompts{Persona: "custom", Intents: []string{"a"}})
	assert.Equal(t, "custom", p.Persona)
	assert.Equal(t, []string{"a"}, p.Intents)
	assert.NotEmpty(t, p.SummaryTemplate)
}
