package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxpad/internal/domain/prescription"
	"github.com/drfirst/go-rxpad/internal/storage"
)

// DefaultKey is the slot key holding the demo collection
const DefaultKey = "prescriptions"

// SlotCollection keeps the whole collection as one JSON array in a slot.
// New prescriptions are prepended.
type SlotCollection struct {
	mu     sync.Mutex
	slot   storage.Slot
	key    string
	logger *zap.Logger
}

// NewSlotCollection creates a collection over slot
func NewSlotCollection(slot storage.Slot, logger *zap.Logger) *SlotCollection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotCollection{slot: slot, key: DefaultKey, logger: logger}
}

// read returns the stored list; a corrupt value reads as empty
func (c *SlotCollection) read(ctx context.Context) ([]prescription.Prescription, error) {
	raw, err := c.slot.Get(ctx, c.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}
	var list []prescription.Prescription
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		c.logger.Warn("stored collection is corrupt, treating as empty", zap.Error(err))
		return nil, nil
	}
	return list, nil
}

func (c *SlotCollection) write(ctx context.Context, list []prescription.Prescription) error {
	if list == nil {
		list = []prescription.Prescription{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	if err := c.slot.Set(ctx, c.key, string(raw)); err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	return nil
}

func (c *SlotCollection) Append(ctx context.Context, p prescription.Prescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, err := c.read(ctx)
	if err != nil {
		return err
	}
	return c.write(ctx, append([]prescription.Prescription{p.Clone()}, list...))
}

func (c *SlotCollection) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, err := c.read(ctx)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, p := range list {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return c.write(ctx, kept)
}

func (c *SlotCollection) Get(ctx context.Context, id string) (prescription.Prescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, err := c.read(ctx)
	if err != nil {
		return prescription.Prescription{}, err
	}
	for _, p := range list {
		if p.ID == id {
			return p, nil
		}
	}
	return prescription.Prescription{}, ErrNotFound
}

func (c *SlotCollection) List(ctx context.Context, f Filter) ([]prescription.Prescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	out := []prescription.Prescription{}
	for _, p := range list {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
