package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/backlog-agent/pkg/chatapi"
	"github.com/spf13/cobra"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the backlog assistant over HTTP",
	Long: `Start the HTTP chat API. Conversations are keyed by the X-Session-ID header.

  POST   /api/chat          {"message": "..."}
  DELETE /api/chat/history
  GET    /health
  GET    /metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	pid := newPIDFile(cfg.DataDir)
	if err := pid.Write(); err != nil {
		return err
	}
	defer pid.Remove()

	a, err := newApp(ctx, cfg, appOptions{console: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	server, err := chatapi.NewServer(chatapi.Options{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		AllowAllOrigins:    cfg.Server.AllowAllOrigins,
		MaxMessages:        cfg.Agent.MaxMessages,
		RateLimit:          cfg.Server.RateLimit.Requests,
		RateWindow:         time.Duration(cfg.Server.RateLimit.WindowSeconds) * time.Second,
		SessionIdleTimeout: time.Duration(cfg.Server.SessionIdleMinutes) * time.Minute,
	}, func(id string) (chatapi.Conversation, error) {
		return a.newSession(id)
	}, a.logger.Zerolog())
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Backlog agent listening on http://%s\n", server.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("Shutdown signal received")
	if err := server.Stop(context.Background()); err != nil {
		return err
	}
	return <-errCh
}
