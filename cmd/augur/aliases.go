package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/augurfin/expense-augur/internal/model"
	"github.com/spf13/cobra"
)

func aliasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "aliases",
		Aliases: []string{"alias"},
		Short:   "Manage vendor aliases",
		Long: `Manage vendor aliases. An alias maps a raw vendor string (as banks print
it) to the canonical vendor key patterns are learned under, so "LYFT
*RIDE THU 6PM" and "LYFT *RIDE FRI 8AM" share one pattern.`,
	}

	cmd.AddCommand(aliasesSetCmd())
	cmd.AddCommand(aliasesListCmd())

	return cmd
}

func aliasesSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <raw-text> <vendor-key>",
		Short: "Map raw vendor text to a canonical vendor key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			alias := &model.VendorAlias{
				OwnerID:   owner,
				Alias:     args[0],
				VendorKey: args[1],
			}
			if err := db.SaveVendorAlias(ctx, alias); err != nil {
				return fmt.Errorf("failed to save alias: %w", err)
			}

			slog.Info("Alias saved", "alias", alias.Alias, "vendor_key", alias.VendorKey)
			return nil
		},
	}
}

func aliasesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List vendor aliases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			owner, err := requireOwner()
			if err != nil {
				return err
			}

			db, cleanup, err := getDatabase()
			if err != nil {
				return err
			}
			defer cleanup()

			aliases, err := db.GetAllVendorAliases(ctx, owner)
			if err != nil {
				return fmt.Errorf("failed to list aliases: %w", err)
			}
			if len(aliases) == 0 {
				slog.Info("No aliases defined")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ALIAS\tVENDOR KEY")
			_, _ = fmt.Fprintln(w, "─────\t──────────")
			for _, a := range aliases {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", a.Alias, a.VendorKey)
			}
			return w.Flush()
		},
	}
}
