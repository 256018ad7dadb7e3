package service

import (
	"context"
	"fmt"

	"portfolio_backend/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// SelectItem applies itemID to slot, or clears the slot when itemID is nil.
// Locked items must be owned. No purchase record is written.
func (e *Executor) SelectItem(ctx context.Context, userID string, slot domain.Slot, itemID *string) (res *Result, err error) {
	const op = "select"
	ctx, span := e.startSpan(ctx, op, userID, attribute.String("slot", string(slot)))
	defer func() { e.finish(span, op, err) }()

	category, ok := slot.Category()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}

	var item domain.CatalogItem
	if itemID != nil {
		item, err = e.resolveItem(*itemID)
		if err != nil {
			return nil, err
		}
		if item.Category != category {
			return nil, fmt.Errorf("%w: %s is a %s item", ErrCategoryMismatch, item.ID, item.Category)
		}
	}

	l, _, err := e.mutate(ctx, op, userID, func(l *domain.Ledger) (*change, error) {
		if itemID == nil {
			l.SetSelection(slot, nil)
			return nil, nil
		}
		if !item.Free() && !l.Owns(item.Category, item.ID) {
			return nil, ErrNotOwned
		}
		id := item.ID
		l.SetSelection(slot, &id)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Ledger: l}, nil
}
