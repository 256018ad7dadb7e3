package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/service"
)

const maxPendingShown = 20

// PendingStore is the read side of the reconciliation queue.
type PendingStore interface {
	ListPending(ctx context.Context, limit int) ([]*domain.PendingReconciliation, error)
	CountPending(ctx context.Context) (int, error)
}

type ReconcileRunner interface {
	RunOnce(ctx context.Context) (service.ReconcileReport, error)
}

type LedgerLookup interface {
	GetLedger(ctx context.Context, userID string) (*domain.Ledger, error)
}

// Commands renders admin command replies as Telegram HTML.
type Commands struct {
	pending    PendingStore
	reconciler ReconcileRunner
	ledgers    LedgerLookup
}

func NewCommands(pending PendingStore, reconciler ReconcileRunner, ledgers LedgerLookup) *Commands {
	return &Commands{pending: pending, reconciler: reconciler, ledgers: ledgers}
}

// Handle dispatches one command. args is everything after the command.
func (c *Commands) Handle(ctx context.Context, command, args string) string {
	switch command {
	case "start", "help":
		return helpMessage
	case "pending":
		return c.handlePending(ctx)
	case "reconcile":
		return c.handleReconcile(ctx)
	case "ledger":
		return c.handleLedger(ctx, strings.TrimSpace(args))
	}
	return "❌ Unknown command. Use /help."
}

const helpMessage = `<b>🤖 Admin commands</b>

/pending - Payments waiting for reconciliation
/reconcile - Run a reconciliation pass now
/ledger &lt;user_id&gt; - Show a user's ledger`

func (c *Commands) handlePending(ctx context.Context) string {
	total, err := c.pending.CountPending(ctx)
	if err != nil {
		return errorReply(err)
	}
	if total == 0 {
		return "✅ No pending payments."
	}
	items, err := c.pending.ListPending(ctx, maxPendingShown)
	if err != nil {
		return errorReply(err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>⏳ Pending payments: %d</b>\n", total)
	for _, p := range items {
		target := p.ItemID
		if p.Kind == domain.ReconciliationKindCreditsPack {
			target = fmt.Sprintf("%s (+%d credits)", p.PackID, p.Credits)
		}
		fmt.Fprintf(&sb, "\n• <code>%s</code> user <code>%s</code> %s %s %s, attempts %d",
			html.EscapeString(p.ProviderTransactionID),
			html.EscapeString(p.UserID),
			html.EscapeString(target),
			domain.MajorUnits(p.AmountMinor).StringFixed(2),
			html.EscapeString(p.Currency),
			p.Attempts)
		if p.LastError != "" {
			fmt.Fprintf(&sb, "\n  last error: %s", html.EscapeString(p.LastError))
		}
	}
	if total > len(items) {
		fmt.Fprintf(&sb, "\n\n…and %d more", total-len(items))
	}
	return sb.String()
}

func (c *Commands) handleReconcile(ctx context.Context) string {
	report, err := c.reconciler.RunOnce(ctx)
	if err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf("🔁 Reconciliation pass\n\nChecked: %d\nResolved: %d\nFailed: %d",
		report.Checked, report.Resolved, report.Failed)
}

func (c *Commands) handleLedger(ctx context.Context, userID string) string {
	if userID == "" {
		return "Usage: /ledger &lt;user_id&gt;"
	}
	l, err := c.ledgers.GetLedger(ctx, userID)
	if errors.Is(err, service.ErrLedgerNotFound) {
		return "❌ No ledger for " + html.EscapeString(userID)
	}
	if err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf(`<b>📒 Ledger %s</b>

💰 Credits: %d
🎬 Videos: %s
🎵 Music: %s
✨ Effects: %s
🎁 Event reward claimed: %s
Version: %d`,
		html.EscapeString(l.UserID),
		l.VirtualCurrency,
		joinSet(l.PurchasedVideos),
		joinSet(l.PurchasedMusic),
		joinSet(l.PurchasedEffects),
		strconv.FormatBool(l.EventRewardClaimed),
		l.Version)
}

func joinSet(s domain.ItemSet) string {
	ids := s.Sorted()
	if len(ids) == 0 {
		return "-"
	}
	return html.EscapeString(strings.Join(ids, ", "))
}

func errorReply(err error) string {
	return "❌ Error: " + html.EscapeString(err.Error())
}
