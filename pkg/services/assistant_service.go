package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartassist-api/pkg/llm"
	"smartassist-api/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	intentGeneral = "general_inquiry"
	relevantFAQs  = 3
)

// DefaultIntents are the intents the classifier may return.
var DefaultIntents = []string{
	"data_inquiry",
	"recharge_issue",
	"network_complaint",
	"roaming_inquiry",
	"porting_request",
	"tariff_inquiry",
	"security_issue",
	intentGeneral,
}

// keywordIntents is the fallback classifier, checked in order.
var keywordIntents = []struct {
	intent   string
	keywords []string
}{
	{"data_inquiry", []string{"data", "bundle", "plan", "gb", "mb"}},
	{"recharge_issue", []string{"recharge", "airtime", "top up"}},
	{"network_complaint", []string{"network", "signal", "connection"}},
}

// DefaultAssistantPrompts returns the built-in prompt set.
func DefaultAssistantPrompts() models.AssistantPrompts {
	return models.AssistantPrompts{
		Persona: `You are SmartAssist, an AI customer service assistant for a mobile network operator.

Your personality:
- Friendly, professional, and empathetic
- Keep responses concise but complete
- Always try to resolve issues or provide clear next steps

Guidelines:
- Use the FAQ context provided to give accurate information
- If you don't know something, direct customers to the customer care line or a service center
- Show empathy for customer issues`,
		ResponseTemplate: `Customer message: %s

Detected intent: %s

Relevant FAQ context:
%s

Provide a helpful, friendly response that addresses the customer's needs. If the FAQ context is relevant, use it to inform your answer.`,
		IntentSystem: "You are an intent classification system. Always respond with valid JSON only.",
		IntentTemplate: `Classify the following customer message into one of these intents: %s

Customer message: "%s"

Respond with JSON format:
{"intent": "intent_name", "confidence": 0.95, "entities": {}}`,
		SummarySystem: "You are a customer service analyst. Create brief, professional summaries.",
		SummaryTemplate: `Summarize this customer service conversation in 2-3 concise sentences for CRM notes:

%s

Summary:`,
		Intents:      append([]string(nil), DefaultIntents...),
		NoFAQContext: "No specific FAQs found.",
		Unconfigured: "AI service is not configured. Please contact customer care for further help.",
	}
}

// withDefaults fills every empty field from the built-in prompt set.
func withDefaults(p models.AssistantPrompts) models.AssistantPrompts {
	d := DefaultAssistantPrompts()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&p.Persona, d.Persona)
	fill(&p.ResponseTemplate, d.ResponseTemplate)
	fill(&p.IntentSystem, d.IntentSystem)
	fill(&p.IntentTemplate, d.IntentTemplate)
	fill(&p.SummarySystem, d.SummarySystem)
	fill(&p.SummaryTemplate, d.SummaryTemplate)
	fill(&p.NoFAQContext, d.NoFAQContext)
	fill(&p.Unconfigured, d.Unconfigured)
	if len(p.Intents) == 0 {
		p.Intents = d.Intents
	}
	return p
}

// AssistantService answers customer messages: intent, FAQ lookup and an
// LLM-written reply, degrading to keyword rules and FAQ answers when the
// provider is unavailable or failing.
type AssistantService struct {
	provider llm.Provider
	faqs     *FAQService
	prompts  models.AssistantPrompts
	logger   zerolog.Logger
}

// NewAssistantService チャットアシスタントサービスを作成
func NewAssistantService(provider llm.Provider, faqs *FAQService, prompts models.AssistantPrompts, logger zerolog.Logger) *AssistantService {
	if provider == nil {
		provider = llm.Unavailable()
	}
	if faqs == nil {
		faqs = NewFAQService(nil, logger)
	}
	return &AssistantService{
		provider: provider,
		faqs:     faqs,
		prompts:  withDefaults(prompts),
		logger:   logger.With().Str("component", "assistant").Logger(),
	}
}

// ProviderName reports which provider answers messages.
func (s *AssistantService) ProviderName() string {
	return s.provider.Name()
}

// ProviderAvailable reports whether an LLM is configured.
func (s *AssistantService) ProviderAvailable() bool {
	return s.provider.Available()
}

// FAQs exposes the FAQ index used for retrieval.
func (s *AssistantService) FAQs() *FAQService {
	return s.faqs
}

// ClassifyIntent asks the provider for an intent. Anything other than a
// well-formed answer naming a known intent falls back to keyword rules.
func (s *AssistantService) ClassifyIntent(ctx context.Context, message string) models.IntentResult {
	if !s.provider.Available() {
		return keywordIntent(message)
	}
	raw, err := s.provider.Complete(ctx, llm.CompletionRequest{
		System:      s.prompts.IntentSystem,
		Prompt:      fmt.Sprintf(s.prompts.IntentTemplate, strings.Join(s.prompts.Intents, ", "), message),
		MaxTokens:   150,
		Temperature: 0.3,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("intent classification failed, using keyword fallback")
		return keywordIntent(message)
	}
	result, ok := parseIntent(raw, s.prompts.Intents)
	if !ok {
		s.logger.Debug().Str("raw", raw).Msg("unparseable intent answer, using keyword fallback")
		return keywordIntent(message)
	}
	return result
}

func parseIntent(raw string, known []string) (models.IntentResult, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed struct {
		Intent     string                 `json:"intent"`
		Confidence float64                `json:"confidence"`
		Entities   map[string]interface{} `json:"entities"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return models.IntentResult{}, false
	}
	valid := false
	for _, k := range known {
		if parsed.Intent == k {
			valid = true
			break
		}
	}
	if !valid {
		return models.IntentResult{}, false
	}
	conf := parsed.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	entities := make(map[string]string, len(parsed.Entities))
	for k, v := range parsed.Entities {
		entities[k] = fmt.Sprint(v)
	}
	return models.IntentResult{Intent: parsed.Intent, Confidence: conf, Entities: entities}, true
}

// keywordIntent キーワードによるフォールバック意図判定
func keywordIntent(message string) models.IntentResult {
	lower := strings.ToLower(message)
	for _, rule := range keywordIntents {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return models.IntentResult{Intent: rule.intent, Confidence: 0.8, Entities: map[string]string{}, Fallback: true}
			}
		}
	}
	return models.IntentResult{Intent: intentGeneral, Confidence: 0.6, Entities: map[string]string{}, Fallback: true}
}

// Respond answers one customer message. sessionID may be empty, in which
// case a new one is issued.
func (s *AssistantService) Respond(ctx context.Context, sessionID, message string) (*models.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message must not be empty")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	start := time.Now()

	intent := s.ClassifyIntent(ctx, message)
	faqs := s.faqs.Search(message, relevantFAQs)

	reply := &models.ChatReply{
		SessionID:    sessionID,
		Intent:       intent.Intent,
		Confidence:   intent.Confidence,
		RelevantFAQs: faqs,
		FAQCount:     len(faqs),
		Provider:     s.provider.Name(),
	}

	if s.provider.Available() {
		answer, err := s.provider.Complete(ctx, llm.CompletionRequest{
			System:      s.prompts.Persona,
			Prompt:      fmt.Sprintf(s.prompts.ResponseTemplate, message, intent.Intent, s.faqContext(faqs)),
			MaxTokens:   500,
			Temperature: 0.7,
		})
		if err == nil && strings.TrimSpace(answer) != "" {
			reply.Response = answer
			reply.ResponseTime = time.Since(start)
			return reply, nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("response generation failed, answering from FAQs")
		}
	}

	reply.Response = s.fallbackAnswer(faqs)
	reply.ResponseTime = time.Since(start)
	return reply, nil
}

func (s *AssistantService) faqContext(faqs []models.FAQ) string {
	if len(faqs) == 0 {
		return s.prompts.NoFAQContext
	}
	parts := make([]string, len(faqs))
	for i, f := range faqs {
		parts[i] = fmt.Sprintf("FAQ: %s\nAnswer: %s", f.Question, f.Answer)
	}
	return strings.Join(parts, "\n\n")
}

func (s *AssistantService) fallbackAnswer(faqs []models.FAQ) string {
	if len(faqs) > 0 {
		return faqs[0].Answer
	}
	return s.prompts.Unconfigured
}

// Summarize writes a short CRM note for a conversation. Without a provider
// it returns llm.ErrProviderNotConfigured.
func (s *AssistantService) Summarize(ctx context.Context, conversation []models.ChatTurn) (string, error) {
	if len(conversation) == 0 {
		return "", errors.New("conversation must not be empty")
	}
	if !s.provider.Available() {
		return "", llm.ErrProviderNotConfigured
	}
	lines := make([]string, len(conversation))
	for i, turn := range conversation {
		lines[i] = fmt.Sprintf("%s: %s", turn.Role, turn.Content)
	}
	summary, err := s.provider.Complete(ctx, llm.CompletionRequest{
		System:      s.prompts.SummarySystem,
		Prompt:      fmt.Sprintf(s.prompts.SummaryTemplate, strings.Join(lines, "\n")),
		MaxTokens:   150,
		Temperature: 0.5,
	})
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
