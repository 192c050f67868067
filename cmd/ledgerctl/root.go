package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"library-ledger-backend/internal/bootstrap"
	"library-ledger-backend/internal/clock"
	"library-ledger-backend/internal/config"
	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/security"
	"library-ledger-backend/internal/service"
)

// app is the wiring shared by every subcommand, built lazily so --help
// never touches the database.
type app struct {
	cfg      *config.Config
	clock    clock.Clock
	stores   *bootstrap.Stores
	registry service.RegistryService
	query    service.QueryService
	auth     service.AuthService
}

// operator is the identity ledgerctl acts as.
var operator = domain.Identity{ID: "ledgerctl", Role: domain.RoleAdmin}

func newRootCmd() *cobra.Command {
	var configPath string
	a := &app{}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the library lending and reservation ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context(), configPath)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.dev.yaml", "Path to configuration file")

	root.AddCommand(
		newMigrateCmd(a),
		newUnitsCmd(a),
		newStatusCmd(a),
		newOverdueCmd(a),
		newMembersCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	a.cfg = cfg
	a.clock = clock.System()
	a.stores, err = bootstrap.OpenStores(ctx, cfg, a.clock.Now)
	if err != nil {
		return err
	}

	policy := cfg.Policy()
	tokens := security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)
	a.registry = service.NewRegistryService(a.stores.Units, a.clock)
	a.query = service.NewQueryService(a.stores.Units, a.stores.Ledger, policy)
	a.auth = service.NewAuthService(a.stores.Members, tokens)
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.stores == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a.stores.Close(ctx)
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return tw
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}
