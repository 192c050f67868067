package main

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/repository/postgres"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.stores.DB == nil {
				return errors.New("migrate needs the postgres backend")
			}
			if err := postgres.Migrate(cmd.Context(), a.stores.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func newUnitsCmd(a *app) *cobra.Command {
	units := &cobra.Command{
		Use:   "units",
		Short: "List and register resource units",
	}

	var filter struct {
		kind, bookID, section, spotType string
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "Show the status board",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := a.clock.Now()
			board, err := a.query.UnitBoard(cmd.Context(), domain.UnitFilter{
				Kind:     domain.UnitKind(filter.kind),
				BookID:   filter.bookID,
				Section:  filter.section,
				SpotType: domain.SpotType(filter.spotType),
			}, now)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "KIND", "LABEL", "STATUS", "HOLDER", "UNTIL")
			for _, v := range board {
				holder, until := "-", "-"
				if v.Current != nil {
					holder, until = v.Current.HolderID, formatTime(v.Current.DueAt)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", v.Unit.ID, v.Unit.Kind, v.Unit.Label, v.Status, holder, until)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&filter.kind, "kind", "", "book_copy, seat or parking_spot")
	list.Flags().StringVar(&filter.bookID, "book", "", "Only copies of this book")
	list.Flags().StringVar(&filter.section, "section", "", "Only seats in this section")
	list.Flags().StringVar(&filter.spotType, "spot-type", "", "Only parking spots of this type")

	var (
		id, kind, label string
		attrs           []string
	)
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a new unit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			attributes, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			unit := &domain.ResourceUnit{ID: id, Kind: domain.UnitKind(kind), Label: label, Attributes: attributes}
			if err := a.registry.RegisterUnit(cmd.Context(), operator, unit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s %s (%s)\n", unit.Kind, unit.ID, unit.Label)
			return nil
		},
	}
	register.Flags().StringVar(&id, "id", "", "Unit ID (generated when empty)")
	register.Flags().StringVar(&kind, "kind", "", "book_copy, seat or parking_spot")
	register.Flags().StringVar(&label, "label", "", "Display label")
	register.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute as key=value, e.g. bookId=B1")
	_ = register.MarkFlagRequired("kind")

	decommission := &cobra.Command{
		Use:   "decommission UNIT_ID",
		Short: "Retire a unit with no open entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.registry.DecommissionUnit(cmd.Context(), operator, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Decommissioned %s\n", args[0])
			return nil
		},
	}

	units.AddCommand(list, register, decommission)
	return units
}

func parseAttributes(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("attribute %q is not key=value", p)
		}
		attrs[k] = v
	}
	return attrs, nil
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status UNIT_ID",
		Short: "Show a unit's status and its ledger history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			now := a.clock.Now()
			view, err := a.query.UnitStatus(ctx, args[0], now)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s): %s\n\n", view.Unit.Label, view.Unit.Kind, view.Status)

			history, err := a.query.HistoryForUnit(ctx, args[0])
			if err != nil {
				return err
			}
			tw := newTable(out, "ENTRY", "KIND", "HOLDER", "OPENED", "DUE", "CLOSED", "RENEWALS")
			for _, e := range history {
				closed := "-"
				if e.ClosedAt != nil {
					closed = formatTime(*e.ClosedAt)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n", e.ID, e.Kind, e.HolderID, formatTime(e.OpenedAt), formatTime(e.DueAt), closed, e.Renewals)
			}
			return tw.Flush()
		},
	}
}

func newOverdueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List overdue checkouts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.query.OverdueList(cmd.Context(), a.clock.Now())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ENTRY", "UNIT", "HOLDER", "DUE", "RENEWALS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.ID, e.UnitID, e.HolderID, formatTime(e.DueAt), e.Renewals)
			}
			return tw.Flush()
		},
	}
}

func newMembersCmd(a *app) *cobra.Command {
	members := &cobra.Command{
		Use:   "members",
		Short: "Provision accounts and change member status",
	}

	var name, email string
	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, prompting for the password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			m, err := a.auth.Provision(cmd.Context(), name, email, password, domain.RoleAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", m.ID, m.Email)
			return nil
		},
	}
	createAdmin.Flags().StringVar(&name, "name", "", "Display name")
	createAdmin.Flags().StringVar(&email, "email", "", "Login email")
	_ = createAdmin.MarkFlagRequired("name")
	_ = createAdmin.MarkFlagRequired("email")

	setStatus := &cobra.Command{
		Use:       "set-status MEMBER_ID STATUS",
		Short:     "Set a member's status (active, inactive, suspended, pending)",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"active", "inactive", "suspended", "pending"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.auth.SetMemberStatus(cmd.Context(), operator, args[0], domain.MemberStatus(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Member %s is now %s\n", args[0], args[1])
			return nil
		},
	}

	members.AddCommand(createAdmin, setStatus)
	return members
}

// readPassword reads without echo from a terminal, or a plain line when
// stdin is piped.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

