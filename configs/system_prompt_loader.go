package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"smartassist-api/pkg/models"

	"gopkg.in/yaml.v3"
)

// promptsFile is the layout of assistant_prompts.yaml.
type promptsFile struct {
	Assistant models.AssistantPrompts `yaml:"assistant"`
	Metadata  struct {
		Version     string `yaml:"version"`
		LastUpdated string `yaml:"last_updated"`
	} `yaml:"metadata"`
}

// LoadAssistantPrompts はYAMLファイルからアシスタントのプロンプト設定を読み込む。
// ファイルが無い場合は空の設定を返し、組み込みの既定値が使われる。
func LoadAssistantPrompts(path string) (models.AssistantPrompts, error) {
	if path == "" {
		return models.AssistantPrompts{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.AssistantPrompts{}, nil
	}
	if err != nil {
		return models.AssistantPrompts{}, fmt.Errorf("プロンプト設定ファイルの読み込みに失敗: %w", err)
	}

	var f promptsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return models.AssistantPrompts{}, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}
	return f.Assistant, nil
}
