package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "import the legacy slots.json and revoked_slots.json files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		activePath, _ := cmd.Flags().GetString("active")
		revokedPath, _ := cmd.Flags().GetString("revoked")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		active, err := readLegacy(activePath)
		if err != nil {
			return err
		}
		revoked, err := readLegacy(revokedPath)
		if err != nil {
			return err
		}

		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := convertLegacy(active, revoked, e.slots.Catalog(), time.Now().UTC())
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			slog.Warn("Import warning", slog.String("type", "sys"), slog.String("detail", w))
		}
		for _, s := range res.Skipped {
			slog.Warn("Skipped legacy record", slog.String("type", "sys"), slog.String("detail", s))
		}
		slog.Info("Legacy data converted",
			slog.String("type", "sys"),
			slog.Int("active", len(res.Snapshot.Active)),
			slog.Int("revoked", len(res.Snapshot.Revoked)),
			slog.Int("skipped", len(res.Skipped)),
		)
		if dryRun {
			return nil
		}
		if err := e.slots.Load(ctx, res.Snapshot); err != nil {
			return err
		}
		slog.Info("Import completed successfully!", slog.String("type", "sys"))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "write the current slot tables as a snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")

		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		snap, err := e.slots.Snapshot(ctx)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		if out == "" || out == "-" {
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		slog.Info("Snapshot exported",
			slog.String("type", "sys"),
			slog.String("path", out),
			slog.Int("active", len(snap.Active)),
			slog.Int("revoked", len(snap.Revoked)),
		)
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <snapshot.json>",
	Short: "replace the slot tables with a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var snap slots.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}

		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.slots.Load(ctx, &snap); err != nil {
			return err
		}
		slog.Info("Snapshot loaded",
			slog.String("type", "sys"),
			slog.Int("active", len(snap.Active)),
			slog.Int("revoked", len(snap.Revoked)),
		)
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "manage snapshot backups in Spaces",
}

var backupPushCmd = &cobra.Command{
	Use:   "push",
	Short: "upload a snapshot of the current tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		bk, err := e.backup(ctx)
		if err != nil {
			return err
		}
		snap, err := e.slots.Snapshot(ctx)
		if err != nil {
			return err
		}
		key, err := bk.Upload(ctx, snap)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var backupPullCmd = &cobra.Command{
	Use:   "pull [key]",
	Short: "restore the tables from a backup, the latest one by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		bk, err := e.backup(ctx)
		if err != nil {
			return err
		}
		var key string
		if len(args) == 1 {
			key = args[0]
		}
		snap, err := bk.Download(ctx, key)
		if err != nil {
			return err
		}
		if err := e.slots.Load(ctx, snap); err != nil {
			return err
		}
		slog.Info("Backup restored",
			slog.String("type", "sys"),
			slog.String("key", key),
			slog.Time("taken_at", snap.TakenAt),
		)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "list stored backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		bk, err := e.backup(ctx)
		if err != nil {
			return err
		}
		keys, err := bk.List(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print slot counts per status and plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if e.db != nil {
			if err := e.db.Ping(ctx); err != nil {
				return err
			}
		}
		st, err := e.slots.Stats(ctx)
		if err != nil {
			return err
		}
		printStats(cmd, e.cfg.DB.Driver, st)
		return nil
	},
}

func printStats(cmd *cobra.Command, driver string, st slots.Stats) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "store:   %s\n", driver)
	fmt.Fprintf(w, "active:  %d (%d on hold)\n", st.Active, st.Held)
	fmt.Fprintf(w, "revoked: %d\n", st.Revoked)

	plans := make([]string, 0, len(st.ByPlan))
	for p := range st.ByPlan {
		plans = append(plans, string(p))
	}
	sort.Strings(plans)
	for _, p := range plans {
		fmt.Fprintf(w, "  %-10s %d\n", p, st.ByPlan[slots.Plan(p)])
	}
}

func readLegacy(path string) (map[string]legacySlot, error) {
	if path == "" {
		return map[string]legacySlot{}, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		slog.Warn("Legacy file not found, treating as empty",
			slog.String("type", "sys"),
			slog.String("path", path))
		return map[string]legacySlot{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeLegacy(f)
}

func init() {
	importCmd.Flags().String("active", "data/slots.json", "legacy active slots file")
	importCmd.Flags().String("revoked", "data/revoked_slots.json", "legacy revoked slots file")
	importCmd.Flags().Bool("dry-run", false, "convert and report without writing")
	exportCmd.Flags().StringP("out", "o", "-", "output file, - for stdout")

	backupCmd.AddCommand(backupPushCmd, backupPullCmd, backupListCmd)
	rootCmd.AddCommand(importCmd, exportCmd, loadCmd, backupCmd, statusCmd)
}
