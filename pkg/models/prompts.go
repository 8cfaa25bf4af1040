package models

// AssistantPrompts holds the prompt texts the assistant sends to the LLM.
// It is loaded from YAML; empty fields fall back to built-in defaults.
type AssistantPrompts struct {
	Persona          string   `yaml:"persona"`
	ResponseTemplate string   `yaml:"response_template"` // %s: message, intent, FAQ context
	IntentSystem     string   `yaml:"intent_system"`
	IntentTemplate   string   `yaml:"intent_template"` // %s: intents, message
	SummarySystem    string   `yaml:"summary_system"`
	SummaryTemplate  string   `yaml:"summary_template"` // %s: transcript
	Intents          []string `yaml:"intents"`
	NoFAQContext     string   `yaml:"no_faq_context"`
	Unconfigured     string   `yaml:"unconfigured_reply"`
}
