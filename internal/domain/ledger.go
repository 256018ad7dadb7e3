package domain

import "time"

// Ledger is the per-user account record: credit balance, owned cosmetics and
// the currently applied selections.
type Ledger struct {
	UserID             string    `db:"user_id" json:"user_id"`
	VirtualCurrency    int64     `db:"virtual_currency" json:"virtual_currency"`
	PurchasedVideos    ItemSet   `json:"purchased_videos"`
	PurchasedMusic     ItemSet   `json:"purchased_music"`
	PurchasedEffects   ItemSet   `json:"purchased_effects"`
	ActiveEffect       *string   `db:"active_effect" json:"active_effect"`
	SelectedVideoID    *string   `db:"selected_video_id" json:"selected_video_id"`
	SelectedMusicID    *string   `db:"selected_music_id" json:"selected_music_id"`
	EventRewardClaimed bool      `db:"event_reward_claimed" json:"event_reward_claimed"`
	Version            int64     `db:"version" json:"version"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// NewLedger returns an empty ledger for userID with the given opening balance.
func NewLedger(userID string, openingBalance int64) *Ledger {
	return &Ledger{
		UserID:           userID,
		VirtualCurrency:  openingBalance,
		PurchasedVideos:  NewItemSet(),
		PurchasedMusic:   NewItemSet(),
		PurchasedEffects: NewItemSet(),
	}
}

// Owned returns the owned set for a category. Unknown categories yield nil.
func (l *Ledger) Owned(category Category) ItemSet {
	switch category {
	case CategoryVideo:
		return l.PurchasedVideos
	case CategoryMusic:
		return l.PurchasedMusic
	case CategoryEffect:
		return l.PurchasedEffects
	}
	return nil
}

// Owns reports whether itemID is in the owned set of category.
func (l *Ledger) Owns(category Category, itemID string) bool {
	return l.Owned(category).Has(itemID)
}

// Grant adds itemID to the owned set of category. It returns false when the
// item was already owned.
func (l *Ledger) Grant(category Category, itemID string) bool {
	set := l.Owned(category)
	if set == nil {
		return false
	}
	return set.Add(itemID)
}

// Selection returns the pointer field for slot.
func (l *Ledger) Selection(slot Slot) *string {
	switch slot {
	case SlotVideo:
		return l.SelectedVideoID
	case SlotMusic:
		return l.SelectedMusicID
	case SlotEffect:
		return l.ActiveEffect
	}
	return nil
}

// SetSelection replaces the pointer field for slot.
func (l *Ledger) SetSelection(slot Slot, itemID *string) {
	switch slot {
	case SlotVideo:
		l.SelectedVideoID = itemID
	case SlotMusic:
		l.SelectedMusicID = itemID
	case SlotEffect:
		l.ActiveEffect = itemID
	}
}

// Clone returns a deep copy so a transaction attempt can mutate freely and be
// discarded on conflict.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.PurchasedVideos = l.PurchasedVideos.Clone()
	c.PurchasedMusic = l.PurchasedMusic.Clone()
	c.PurchasedEffects = l.PurchasedEffects.Clone()
	c.ActiveEffect = cloneString(l.ActiveEffect)
	c.SelectedVideoID = cloneString(l.SelectedVideoID)
	c.SelectedMusicID = cloneString(l.SelectedMusicID)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Slot is a profile position a cosmetic can be applied to.
type Slot string

const (
	SlotVideo  Slot = "video"
	SlotMusic  Slot = "music"
	SlotEffect Slot = "effect"
)

// Category returns the catalog category items for this slot must belong to.
func (s Slot) Category() (Category, bool) {
	switch s {
	case SlotVideo:
		return CategoryVideo, true
	case SlotMusic:
		return CategoryMusic, true
	case SlotEffect:
		return CategoryEffect, true
	}
	return "", false
}

// OwnedItem is one row of a user's owned-item set.
type OwnedItem struct {
	Category Category `json:"category"`
	ItemID   string   `json:"item_id"`
}
