package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"portfolio_backend/internal/catalog"
	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/logger"
	"portfolio_backend/internal/payment"
	"portfolio_backend/internal/repository"

	"github.com/google/uuid"
)

// AdminNotifier receives operator alerts. The admin bot implements it.
type AdminNotifier interface {
	NotifyAdmins(text string)
}

// CheckoutOrder is what the client needs to open the provider checkout.
type CheckoutOrder struct {
	OrderID  string `json:"order_id"`
	KeyID    string `json:"key_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Kind     string `json:"kind"`
	ItemID   string `json:"item_id,omitempty"`
	PackID   string `json:"pack_id,omitempty"`
	Credits  int64  `json:"credits,omitempty"`
}

// Confirmation is the checkout widget's success callback.
type Confirmation struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// CheckoutService bridges the payment provider and the executor.
type CheckoutService struct {
	exec            *Executor
	gateway         payment.Gateway
	reconciliations ReconciliationStore
	notifier        AdminNotifier
	log             *slog.Logger
}

// NewCheckoutService creates a checkout service
func NewCheckoutService(exec *Executor, gateway payment.Gateway, reconciliations ReconciliationStore) *CheckoutService {
	return &CheckoutService{
		exec:            exec,
		gateway:         gateway,
		reconciliations: reconciliations,
		log:             logger.With("component", "checkout"),
	}
}

// SetNotifier wires operator alerts for parked payments.
func (s *CheckoutService) SetNotifier(n AdminNotifier) {
	s.notifier = n
}

// CreateItemOrder opens a provider order for a real-money item.
func (s *CheckoutService) CreateItemOrder(ctx context.Context, userID, itemID string) (*CheckoutOrder, error) {
	item, err := s.exec.resolveItem(itemID)
	if err != nil {
		return nil, err
	}
	price, ok := s.exec.catalog.ItemPrice(item)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no real money price", ErrNotPurchasable, itemID)
	}

	l, err := s.exec.store.GetLedger(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	if l.Owns(item.Category, item.ID) {
		return nil, ErrAlreadyOwned
	}

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   price.Amount,
		Currency: price.Currency,
		Receipt:  receipt(),
		Notes: payment.Notes{
			payment.NoteUserID: userID,
			payment.NoteKind:   string(domain.ReconciliationKindItem),
			payment.NoteItemID: item.ID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalPaymentFailure, err)
	}

	s.log.Info("checkout order created", "user_id", userID, "item_id", item.ID, "order_id", order.ID, "amount", price.Amount)
	return &CheckoutOrder{
		OrderID:  order.ID,
		KeyID:    s.gateway.KeyID(),
		Amount:   price.Amount,
		Currency: price.Currency,
		Kind:     string(domain.ReconciliationKindItem),
		ItemID:   item.ID,
	}, nil
}

// CreatePackOrder opens a provider order for a credit pack.
func (s *CheckoutService) CreatePackOrder(ctx context.Context, userID, packID string) (*CheckoutOrder, error) {
	pack, err := s.resolvePack(packID)
	if err != nil {
		return nil, err
	}
	if _, err := s.exec.store.GetLedger(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	price := s.exec.catalog.PackPrice(pack)

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   price.Amount,
		Currency: price.Currency,
		Receipt:  receipt(),
		Notes: payment.Notes{
			payment.NoteUserID: userID,
			payment.NoteKind:   string(domain.ReconciliationKindCreditsPack),
			payment.NotePackID: pack.ID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalPaymentFailure, err)
	}

	s.log.Info("checkout order created", "user_id", userID, "pack_id", pack.ID, "order_id", order.ID, "amount", price.Amount)
	return &CheckoutOrder{
		OrderID:  order.ID,
		KeyID:    s.gateway.KeyID(),
		Amount:   price.Amount,
		Currency: price.Currency,
		Kind:     string(domain.ReconciliationKindCreditsPack),
		PackID:   pack.ID,
		Credits:  pack.Credits,
	}, nil
}

// ConfirmPayment verifies a checkout callback and applies the payment.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, userID string, c Confirmation) (*Result, error) {
	if err := s.gateway.VerifyCheckoutSignature(c.OrderID, c.PaymentID, c.Signature); err != nil {
		s.log.Warn("checkout signature rejected", "user_id", userID, "order_id", c.OrderID, "payment_id", c.PaymentID)
		return nil, ErrInvalidSignature
	}

	p, err := s.gateway.FetchPayment(ctx, c.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalPaymentFailure, err)
	}
	if p.OrderID != c.OrderID {
		return nil, fmt.Errorf("%w: payment %s is not for order %s", ErrExternalPaymentFailure, p.ID, c.OrderID)
	}
	if owner := p.Notes[payment.NoteUserID]; owner != userID {
		return nil, fmt.Errorf("%w: payment %s belongs to another user", ErrExternalPaymentFailure, p.ID)
	}
	return s.apply(ctx, userID, p)
}

// HandleWebhook applies a payment.captured event. Other events are ignored
// and return a nil result.
func (s *CheckoutService) HandleWebhook(ctx context.Context, body []byte, signature string) (*Result, error) {
	if err := s.gateway.VerifyWebhookSignature(body, signature); err != nil {
		s.log.Warn("webhook signature rejected")
		return nil, ErrInvalidSignature
	}

	var ev payment.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook: %v", ErrExternalPaymentFailure, err)
	}
	if ev.Event != payment.EventPaymentCaptured {
		s.log.Debug("webhook event ignored", "event", ev.Event)
		return nil, nil
	}

	p := ev.Payload.Payment.Entity
	userID := p.Notes[payment.NoteUserID]
	if userID == "" {
		err := fmt.Errorf("%w: payment %s has no user", ErrExternalPaymentFailure, p.ID)
		if !p.Settled() {
			return nil, err
		}
		return nil, s.reject(ctx, &domain.PendingReconciliation{
			Kind:                  domain.ReconciliationKind(p.Notes[payment.NoteKind]),
			ProviderTransactionID: p.ID,
			AmountMinor:           p.Amount,
			Currency:              p.Currency,
		}, err)
	}
	return s.apply(ctx, userID, &p)
}

func (s *CheckoutService) apply(ctx context.Context, userID string, p *payment.Payment) (*Result, error) {
	if !p.Settled() {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrExternalPaymentFailure, p.ID, p.Status)
	}
	// an applied payment replays even if the catalog changed since
	if res, ok, err := s.exec.replay(ctx, userID, p.ID); ok {
		return res, nil
	} else if errors.Is(err, ErrExternalPaymentFailure) {
		return nil, err
	}
	paid := domain.Money{Amount: p.Amount, Currency: p.Currency}

	pending := &domain.PendingReconciliation{
		UserID:                userID,
		Kind:                  domain.ReconciliationKind(p.Notes[payment.NoteKind]),
		ProviderTransactionID: p.ID,
		AmountMinor:           p.Amount,
		Currency:              p.Currency,
	}

	var res *Result
	var err error
	switch pending.Kind {
	case domain.ReconciliationKindItem:
		itemID := p.Notes[payment.NoteItemID]
		pending.ItemID = itemID
		item, rerr := s.exec.resolveItem(itemID)
		if rerr != nil {
			return nil, s.reject(ctx, pending, rerr)
		}
		if price, ok := s.exec.catalog.ItemPrice(item); ok && (paid.Currency != price.Currency || paid.Amount < price.Amount) {
			return nil, s.reject(ctx, pending, fmt.Errorf("%w: paid %d %s for %s priced %d %s", ErrExternalPaymentFailure,
				paid.Amount, paid.Currency, itemID, price.Amount, price.Currency))
		}
		res, err = s.exec.PurchaseWithRealMoney(ctx, userID, itemID, p.ID, paid)

	case domain.ReconciliationKindCreditsPack:
		pending.PackID = p.Notes[payment.NotePackID]
		pack, rerr := s.resolvePack(pending.PackID)
		if rerr != nil {
			return nil, s.reject(ctx, pending, rerr)
		}
		if price := s.exec.catalog.PackPrice(pack); paid.Currency != price.Currency || paid.Amount < price.Amount {
			return nil, s.reject(ctx, pending, fmt.Errorf("%w: paid %d %s for pack %s priced %d %s", ErrExternalPaymentFailure,
				paid.Amount, paid.Currency, pack.ID, price.Amount, price.Currency))
		}
		pending.Credits = pack.Credits
		res, err = s.exec.PurchaseCreditsPack(ctx, userID, p.ID, pack.Credits, paid)

	default:
		return nil, s.reject(ctx, pending, fmt.Errorf("%w: payment %s has unknown kind %q", ErrExternalPaymentFailure, p.ID, pending.Kind))
	}

	if err == nil {
		return res, nil
	}
	if IsDefinitive(err) {
		return nil, s.reject(ctx, pending, err)
	}
	return nil, s.park(ctx, pending, err)
}

// reject records a verified charge that can never be applied so an operator
// can refund it. The reconciler never replays rejected rows. The returned
// error matches both ErrPaymentRejected and cause.
func (s *CheckoutService) reject(ctx context.Context, p *domain.PendingReconciliation, cause error) error {
	saveCtx := context.WithoutCancel(ctx)
	if existing, err := s.reconciliations.GetByProviderTx(saveCtx, p.ProviderTransactionID); err == nil {
		if existing.Status == domain.ReconciliationStatusRejected {
			return fmt.Errorf("%w: %w", ErrPaymentRejected, cause)
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.log.Error("failed to look up reconciliation", "payment_id", p.ProviderTransactionID, "error", err)
	}

	p.ID = uuid.NewString()
	p.Status = domain.ReconciliationStatusRejected
	p.LastError = cause.Error()
	if err := s.reconciliations.CreatePending(saveCtx, p); err != nil {
		s.log.Error("failed to persist rejected payment",
			"user_id", p.UserID, "payment_id", p.ProviderTransactionID, "error", err, "cause", cause)
		return fmt.Errorf("persist rejected payment: %w", err)
	}
	RejectedPayments.Inc()

	s.log.Error("verified payment rejected, refund required",
		"user_id", p.UserID, "payment_id", p.ProviderTransactionID, "kind", p.Kind, "error", cause)
	if s.notifier != nil {
		s.notifier.NotifyAdmins(fmt.Sprintf("Payment %s for user %s was charged but rejected, refund required: %v",
			p.ProviderTransactionID, p.UserID, cause))
	}
	return fmt.Errorf("%w: %w", ErrPaymentRejected, cause)
}

// park persists a verified charge whose commit failed so the reconciler can
// replay it.
func (s *CheckoutService) park(ctx context.Context, p *domain.PendingReconciliation, cause error) error {
	p.ID = uuid.NewString()
	p.Status = domain.ReconciliationStatusPending
	p.LastError = cause.Error()

	// The request may already be cancelled; the charge must still be saved.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.reconciliations.CreatePending(saveCtx, p); err != nil {
		s.log.Error("failed to persist pending reconciliation",
			"user_id", p.UserID, "payment_id", p.ProviderTransactionID, "error", err, "cause", cause)
		return fmt.Errorf("persist pending reconciliation: %w", err)
	}
	if n, err := s.reconciliations.CountPending(saveCtx); err == nil {
		PendingReconciliations.Set(float64(n))
	}

	s.log.Error("payment parked for reconciliation",
		"user_id", p.UserID, "payment_id", p.ProviderTransactionID, "kind", p.Kind, "error", cause)
	if s.notifier != nil {
		s.notifier.NotifyAdmins(fmt.Sprintf("Payment %s for user %s is pending reconciliation: %v",
			p.ProviderTransactionID, p.UserID, cause))
	}
	return &PendingReconciliationError{ProviderTransactionID: p.ProviderTransactionID, Err: cause}
}

func (s *CheckoutService) resolvePack(packID string) (domain.CreditPack, error) {
	pack, err := s.exec.catalog.ResolvePack(packID)
	if err != nil {
		if errors.Is(err, catalog.ErrPackNotFound) {
			return domain.CreditPack{}, fmt.Errorf("%w: %s", ErrPackNotFound, packID)
		}
		return domain.CreditPack{}, err
	}
	return pack, nil
}

func receipt() string {
	return "rcpt_" + uuid.NewString()[:18]
}
