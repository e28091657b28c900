package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/workbench/internal/config"
	"github.com/leapstack-labs/workbench/internal/ui"
	"github.com/leapstack-labs/workbench/internal/ui/features/common"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the workbench web UI",
		Long: `Start a local web server hosting the SQL workbench.

Each browser keeps its own workspace, identified by a cookie. Sessions are
persisted to the session database and restored on the next visit.`,
		Example: `  # Start on the default port
  workbench serve

  # Start on a custom port without watching the project
  workbench serve --port 3000 --watch=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "Refresh metadata when project files change")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	st, err := OpenStack(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	secret := cfg.UI.SessionSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		logger.Warn("no ui.session_secret configured, workspace cookies will not survive a restart")
	}

	sessions := common.NewSessions(common.SessionsConfig{
		Factory:          st.NewManager,
		CookieStore:      ui.NewCookieStore(secret, cfg.UI.SecureCookies),
		DefaultWorkspace: cfg.Workspace,
		FlushInterval:    cfg.Session.FlushInterval,
		Logger:           logger,
	})
	server := ui.NewServer(ui.Config{
		Sessions: sessions,
		Project:  st.Project,
		Port:     cfg.UI.Port,
		Watch:    opts.Watch,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting workbench on http://localhost:%d\n", cfg.UI.Port)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
	return server.Serve(ctx)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
