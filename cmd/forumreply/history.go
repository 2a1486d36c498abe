package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/forumreply/pkg/audit"
	"github.com/entrhq/forumreply/pkg/config"
	"github.com/entrhq/forumreply/pkg/ledger"
)

type historyOptions struct {
	platform string
	limit    int
}

var (
	historyHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("36"))
	historyDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func history(ctx context.Context, out io.Writer, opts historyOptions) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := ledger.OpenSQLite(ctx, cfg.Ledger.Path, ledger.WithBusyTimeout(cfg.Ledger.BusyTimeout))
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(ctx, opts.platform, opts.limit)
	if err != nil {
		return err
	}
	total, err := store.Count(ctx, opts.platform)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, renderHistory(records, total))
	return nil
}

func renderHistory(records []ledger.Record, total int) string {
	var b strings.Builder
	b.WriteString(historyHeader.Render(fmt.Sprintf("%-19s  %-12s  %-12s  %s", "TIME", "SITE", "POST", "REPLY")))
	for _, r := range records {
		reply := strings.Join(strings.Fields(r.Reply), " ")
		fmt.Fprintf(&b, "\n%-19s  %-12s  %-12s  %s\n%s",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Platform, r.PostID,
			audit.Truncate(reply, 60), historyDim.Render("  "+r.PostURL))
	}
	fmt.Fprintf(&b, "\n%s", historyDim.Render(fmt.Sprintf("%d of %d recorded replies", len(records), total)))
	return b.String()
}
