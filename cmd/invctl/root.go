package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/digital-inventory/internal/adapter/client"
	"github.com/rl1809/digital-inventory/internal/config"
	"github.com/rl1809/digital-inventory/internal/core/service"
	"github.com/rl1809/digital-inventory/internal/logger"
)

// app holds what every subcommand needs once the root pre-run has loaded
// the config.
type app struct {
	jsonOut   bool
	serverURL string
	token     string

	cfg    *config.ClientConfig
	api    *client.Client
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "invctl",
		Short: "Manage digital inventory groups from the terminal",
		Long: `invctl edits the seller's digital inventory on an inventory server.

  invctl groups list                 List inventory groups
  invctl groups create Netflix       Create a group with the default keys
  invctl link <group-id> <product>   Link a group to a product
  invctl products list               List products and their links`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Output as JSON")
	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "Override server URL (default: INVCTL_SERVER or http://localhost:8080)")
	root.PersistentFlags().StringVar(&a.token, "token", "", "Override bearer token (default: INVCTL_TOKEN)")

	root.AddCommand(
		newGroupsCmd(a),
		newLinkCmd(a),
		newUnlinkCmd(a),
		newProductsCmd(a),
		newUploadCmd(a),
		newHealthCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.serverURL != "" {
		cfg.ServerURL = a.serverURL
	}
	if a.token != "" {
		cfg.Token = a.token
	}

	log, err := logger.New(cfg.LogLevel, true)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = log
	a.api = client.New(cfg.ServerURL, cfg.Token, client.WithTimeout(cfg.Timeout), client.WithLogger(log))
	return nil
}

func (a *app) requireAuth() error {
	if a.cfg == nil || a.cfg.Token == "" {
		return fmt.Errorf("no token configured, set INVCTL_TOKEN or pass --token")
	}
	return nil
}

// manager returns a Manager loaded with the seller's current groups and
// products.
func (a *app) manager(ctx context.Context) (*service.Manager, error) {
	if err := a.requireAuth(); err != nil {
		return nil, err
	}
	var opts []service.ManagerOption
	if a.cfg.VersionCheck {
		opts = append(opts, service.WithVersionCheck())
	}
	m := service.NewManager(a.api, a.logger, opts...)
	if err := m.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	return m, nil
}

// report prints the manager's success notices unless JSON output is on.
func (a *app) report(w io.Writer, m *service.Manager) {
	if a.jsonOut {
		return
	}
	for _, n := range m.Notices() {
		if n.Kind == service.NoticeSuccess {
			fmt.Fprintln(w, n.Message)
		}
	}
}
