package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/codekeep/codekeep/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the append-only audit log",
	Long: `Print audit entries newest first. Every mutation of the store is
recorded with a monotonically increasing sequence number.

Examples:
  audit --limit 20
  audit --table patterns --target a1b2c3d4e5f60708
  audit --action vote --since 2026-08-01`,
	RunE: runAudit,
}

func init() {
	f := auditCmd.Flags()
	f.String("table", "", "filter by target table")
	f.String("target", "", "filter by target id")
	f.String("action", "", "filter by action")
	f.String("since", "", "only entries at or after this date (YYYY-MM-DD)")
	f.String("until", "", "only entries at or before this date (YYYY-MM-DD)")
	f.Int("limit", 50, "maximum number of entries")

	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	table, _ := cmd.Flags().GetString("table")
	target, _ := cmd.Flags().GetString("target")
	action, _ := cmd.Flags().GetString("action")
	sinceStr, _ := cmd.Flags().GetString("since")
	untilStr, _ := cmd.Flags().GetString("until")
	limit, _ := cmd.Flags().GetInt("limit")

	var since, until time.Time
	if sinceStr != "" {
		var err error
		since, err = time.Parse("2006-01-02", sinceStr)
		if err != nil {
			return eris.Wrapf(err, "audit: parse --since %q", sinceStr)
		}
	}
	if untilStr != "" {
		var err error
		until, err = time.Parse("2006-01-02", untilStr)
		if err != nil {
			return eris.Wrapf(err, "audit: parse --until %q", untilStr)
		}
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	entries, err := st.AuditLog(ctx, store.AuditFilters{
		Table:    table,
		TargetID: target,
		Action:   action,
		Since:    since,
		Until:    until,
		Limit:    limit,
	})
	if err != nil {
		return eris.Wrap(err, "audit")
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return nil
	}

	for _, e := range entries {
		detail := ""
		if len(e.Detail) > 0 {
			if b, err := json.Marshal(e.Detail); err == nil {
				detail = " " + string(b)
			}
		}
		fmt.Printf("#%-6d %s %-17s %-10s %-18s %s%s\n",
			e.Seq, e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Table, e.TargetID, e.Actor, detail)
	}
	return nil
}
