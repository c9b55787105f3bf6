package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harun/backlog-agent/pkg/agent"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader    *bufio.Reader
	out       io.Writer
	validator *Validator
}

// NewWizard creates a wizard reading from stdin and writing to stdout
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard over arbitrary streams
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader:    bufio.NewReader(in),
		out:       out,
		validator: NewValidator(),
	}
}

// Run prompts for every required setting. Values already present in base
// are offered as defaults; base itself is not modified.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}

	fmt.Fprintln(w.out, "=== Backlog Agent Configuration Wizard ===")
	fmt.Fprintln(w.out)

	fmt.Fprintln(w.out, "Azure DevOps:")
	var err error
	cfg.DevOps.OrganizationURL, err = w.ask("Organization URL (https://dev.azure.com/your-org)", cfg.DevOps.OrganizationURL, func(s string) error {
		return w.validator.ValidateURL("organization URL", s)
	})
	if err != nil {
		return nil, err
	}
	cfg.DevOps.Project, err = w.ask("Project", cfg.DevOps.Project, required("project"))
	if err != nil {
		return nil, err
	}
	cfg.DevOps.PersonalAccessToken, err = w.askSecret("Personal access token", cfg.DevOps.PersonalAccessToken, required("personal access token"))
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(w.out)

	fmt.Fprintln(w.out, "AI provider options:")
	fmt.Fprintf(w.out, "  %-13s - Azure OpenAI deployment\n", agent.ProviderAzureOpenAI)
	fmt.Fprintf(w.out, "  %-13s - OpenAI API\n", agent.ProviderOpenAI)
	fmt.Fprintf(w.out, "  %-13s - Anthropic API\n", agent.ProviderAnthropic)

	current := agent.ProviderAzureOpenAI
	if profile, err := cfg.ProviderProfile(); err == nil {
		current = profile.Provider
	}
	provider, err := w.ask("Provider", current, func(s string) error {
		switch s {
		case agent.ProviderAzureOpenAI, agent.ProviderOpenAI, agent.ProviderAnthropic:
			return nil
		}
		return fmt.Errorf("unknown provider %s", s)
	})
	if err != nil {
		return nil, err
	}
	cfg.AI.Provider = provider

	switch provider {
	case agent.ProviderAzureOpenAI:
		cfg.AI.AzureOpenAI.Endpoint, err = w.ask("Endpoint (https://your-resource.openai.azure.com)", cfg.AI.AzureOpenAI.Endpoint, func(s string) error {
			return w.validator.ValidateURL("endpoint", s)
		})
		if err != nil {
			return nil, err
		}
		cfg.AI.AzureOpenAI.APIKey, err = w.askSecret("API key", cfg.AI.AzureOpenAI.APIKey, required("API key"))
		if err != nil {
			return nil, err
		}
		cfg.AI.AzureOpenAI.DeploymentName, err = w.ask("Deployment name", cfg.AI.AzureOpenAI.DeploymentName, required("deployment name"))
		if err != nil {
			return nil, err
		}
	case agent.ProviderOpenAI:
		cfg.AI.OpenAI.APIKey, err = w.askSecret("API key", cfg.AI.OpenAI.APIKey, func(s string) error {
			return w.validator.ValidateAPIKey(s, agent.ProviderOpenAI)
		})
		if err != nil {
			return nil, err
		}
		cfg.AI.OpenAI.Model, err = w.ask("Model", cfg.AI.OpenAI.Model, required("model"))
		if err != nil {
			return nil, err
		}
	case agent.ProviderAnthropic:
		cfg.AI.Anthropic.APIKey, err = w.askSecret("API key", cfg.AI.Anthropic.APIKey, func(s string) error {
			return w.validator.ValidateAPIKey(s, agent.ProviderAnthropic)
		})
		if err != nil {
			return nil, err
		}
		cfg.AI.Anthropic.Model, err = w.ask("Model", cfg.AI.Anthropic.Model, required("model"))
		if err != nil {
			return nil, err
		}
	}
	fmt.Fprintln(w.out)

	fmt.Fprintln(w.out, "Logging:")
	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level, nil)
	if err != nil {
		return nil, err
	}
	if err := w.validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		level = "info"
	}
	cfg.Logging.Level = level

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// ask prompts until validate accepts the answer. An empty answer keeps def.
func (w *Wizard) ask(label, def string, validate func(string) error) (string, error) {
	return w.prompt(label, def, def, validate)
}

// askSecret is ask with the default masked in the prompt.
func (w *Wizard) askSecret(label, def string, validate func(string) error) (string, error) {
	return w.prompt(label, def, Mask(def), validate)
}

func (w *Wizard) prompt(label, def, shown string, validate func(string) error) (string, error) {
	for {
		if shown != "" {
			fmt.Fprintf(w.out, "%s [%s]: ", label, shown)
		} else {
			fmt.Fprintf(w.out, "%s: ", label)
		}

		answer, err := w.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			answer = def
		}

		if validate != nil {
			if err := validate(answer); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
		}
		return answer, nil
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
