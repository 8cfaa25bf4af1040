package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGenerateTrainScore(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "customers.csv")
	modelDir := filepath.Join(dir, "models")

	_, err := run(t, "generate", "-n", "300", "--seed", "3", "-o", data)
	require.NoError(t, err)
	raw, err := os.ReadFile(data)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(raw)), "\n"), 301)

	out, err := run(t, "train", "--model-dir", modelDir, "--data", data, "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "ROC AUC:")
	assert.Contains(t, out, "feature importance:")
	assert.FileExists(t, filepath.Join(modelDir, "churn_model.json"))
	assert.FileExists(t, filepath.Join(modelDir, "scaler.json"))

	scoredPath := filepath.Join(dir, "scored.csv")
	_, err = run(t, "score", "--model-dir", modelDir, "--data", data, "-o", scoredPath)
	require.NoError(t, err)
	scored, err := os.ReadFile(scoredPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(scored)), "\n")
	assert.Len(t, lines, 301)
	assert.True(t, strings.HasSuffix(lines[0], "churn_probability,churn_prediction,risk_level"))

	out, err = run(t, "info", "--model-dir", modelDir)
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, true, info["trained"])
}

func TestScoreWithoutModel(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "customers.csv")
	_, err := run(t, "generate", "-n", "10", "-o", data)
	require.NoError(t, err)

	_, err = run(t, "score", "--model-dir", filepath.Join(dir, "empty"), "--data", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not trained")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(data, []byte("customer_id,tenure_months\nC1,3\n"), 0o644))

	out, err := run(t, "validate", "--data", data)
	require.Error(t, err)
	assert.Contains(t, out, "Missing columns")

	_, err = run(t, "train", "--model-dir", dir, "--no-progress")
	require.Error(t, err)
}
