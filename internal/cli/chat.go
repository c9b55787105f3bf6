package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/harun/backlog-agent/pkg/agent"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the backlog assistant in the terminal",
	Long: `Start an interactive conversation with the backlog assistant.
Type 'exit' or 'quit' (or an empty line) to leave, '/clear' to start over.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// chatter is the part of a session the console loop drives
type chatter interface {
	Submit(ctx context.Context, text string) (string, error)
	ClearHistory()
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n=== Backlog AI Assistant ===")
	fmt.Fprintln(out, "Let's chat about a feature. Type 'exit' to quit.")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := cfg.ProviderProfile(); err != nil {
		fmt.Fprintln(out, "Error: Could not find chat completion service.")
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	session, err := a.newSession("")
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	return chatLoop(ctx, cmd.InOrStdin(), out, session)
}

// chatLoop reads questions until the user leaves or input ends. Submission
// errors are shown and the loop continues.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, session chatter) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "\nYour question: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "", "exit", "quit":
			return nil
		case "/clear":
			session.ClearHistory()
			fmt.Fprintln(out, "\nConversation cleared.")
			continue
		}

		reply, err := session.Submit(ctx, input)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "\nError: %v\n", agent.ErrCompletionFailed)
			continue
		}

		fmt.Fprintln(out, "\nAI Assistant: "+reply)
	}
}
