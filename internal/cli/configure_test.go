package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/backlog-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_SavesWizardAnswers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	input := strings.Join([]string{
		"https://dev.azure.com/contoso",
		"Fabrikam",
		"pat-secret-abcd",
		"azure-openai",
		"https://res.openai.azure.com",
		"azure-key-1234",
		"gpt-4o",
		"warn",
	}, "\n") + "\n"
	cmd, out := testCommand(t, path, input)

	require.NoError(t, runConfigure(cmd, nil))
	assert.Contains(t, out.String(), "Configuration saved to: "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Fabrikam", cfg.DevOps.Project)
	assert.Equal(t, "gpt-4o", cfg.AI.AzureOpenAI.DeploymentName)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestConfigure_IncompleteInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cmd, _ := testCommand(t, path, "https://dev.azure.com/contoso\n")

	err := runConfigure(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration failed")
	assert.NoFileExists(t, path)
}

func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestConfigCheck(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.AI.OpenAI.APIKey = "sk-test-key-5678"
		cfg.DevOps.OrganizationURL = "https://dev.azure.com/contoso"
		cfg.DevOps.Project = "Fabrikam"
		cfg.DevOps.PersonalAccessToken = "pat-secret-abcd"
		cmd, out := testCommand(t, writeConfig(t, cfg), "")

		require.NoError(t, runConfigCheck(cmd, nil))
		assert.Contains(t, out.String(), "Provider: openai (gpt-4)")
		assert.Contains(t, out.String(), "Project: https://dev.azure.com/contoso/Fabrikam")
		assert.Contains(t, out.String(), "Configuration OK")
	})

	t.Run("missing settings", func(t *testing.T) {
		cmd, out := testCommand(t, filepath.Join(t.TempDir(), "config.json"), "")

		err := runConfigCheck(cmd, nil)
		require.Error(t, err)
		assert.Contains(t, out.String(), "OPENAI_API_KEY")
		assert.Contains(t, out.String(), "devops project cannot be empty")
	})
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AI.Anthropic.APIKey = "sk-ant-very-secret-9999"
	cfg.DevOps.PersonalAccessToken = "pat-secret-abcd"
	cmd, out := testCommand(t, writeConfig(t, cfg), "")

	require.NoError(t, configShowCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "****9999")
	assert.NotContains(t, out.String(), "very-secret")
	assert.NotContains(t, out.String(), "pat-secret")
}
