package localstore

import (
	"context"
	"fmt"
)

// Drafts keeps unsent form field values across restarts.
type Drafts struct {
	store Store
}

// NewDrafts creates a draft store on top of s.
func NewDrafts(s Store) *Drafts {
	return &Drafts{store: s}
}

func draftKey(form, field string) string {
	return fmt.Sprintf("draft:%s:%s", form, field)
}

// Save stores a field value. Saving an empty value clears the draft.
func (d *Drafts) Save(ctx context.Context, form, field, value string) error {
	if value == "" {
		return d.Clear(ctx, form, field)
	}
	return d.store.Set(ctx, draftKey(form, field), []byte(value))
}

// Load returns the saved value, or "" when there is none.
func (d *Drafts) Load(ctx context.Context, form, field string) (string, error) {
	raw, ok, err := d.store.Get(ctx, draftKey(form, field))
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

// Clear removes a saved value.
func (d *Drafts) Clear(ctx context.Context, form, field string) error {
	return d.store.Delete(ctx, draftKey(form, field))
}
