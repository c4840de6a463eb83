package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"leadrelay/internal/constants"
	"leadrelay/internal/errors"
	"leadrelay/internal/models"

	"github.com/google/uuid"
)

// PendingQueue is the ordered sequence of undelivered submissions, stored as
// one JSON array under a single key. Every operation reads the store; there
// is no in-memory copy.
type PendingQueue struct {
	store KeyValueStore
	key   string
	now   func() time.Time
}

func NewPendingQueue(store KeyValueStore, now func() time.Time) *PendingQueue {
	if now == nil {
		now = time.Now
	}
	return &PendingQueue{
		store: store,
		key:   constants.PendingQueueKey,
		now:   now,
	}
}

// Load returns the queue in stored order.
func (q *PendingQueue) Load(ctx context.Context) ([]models.PendingEntry, error) {
	raw, _, err := q.store.Get(ctx, q.key)
	if err != nil {
		return nil, err
	}
	return q.decode(raw)
}

// Append adds a new entry with zero attempts at the end of the queue.
func (q *PendingQueue) Append(ctx context.Context, record models.SubmissionRecord) (models.PendingEntry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.PendingEntry{}, fmt.Errorf("failed to generate pending id: %w", err)
	}
	entry := models.PendingEntry{
		ID:        id.String(),
		Record:    record,
		CreatedAt: q.now().UTC(),
		Attempts:  0,
	}

	err = q.store.Update(ctx, q.key, func(current string, _ bool) (string, error) {
		entries, err := q.decode(current)
		if err != nil {
			return "", err
		}
		return q.encode(append(entries, entry))
	})
	if err != nil {
		return models.PendingEntry{}, err
	}
	return entry, nil
}

// Reconcile drops delivered entries and counts an attempt on the ones that
// failed again. The queue is re-read inside the update, so entries appended
// while a retry was running survive. Returns the new queue length.
func (q *PendingQueue) Reconcile(ctx context.Context, succeeded, failed []string) (int, error) {
	drop := make(map[string]bool, len(succeeded))
	for _, id := range succeeded {
		drop[id] = true
	}
	bump := make(map[string]bool, len(failed))
	for _, id := range failed {
		bump[id] = true
	}

	remaining := 0
	err := q.store.Update(ctx, q.key, func(current string, _ bool) (string, error) {
		entries, err := q.decode(current)
		if err != nil {
			return "", err
		}

		kept := make([]models.PendingEntry, 0, len(entries))
		for _, e := range entries {
			if drop[e.ID] {
				continue
			}
			if bump[e.ID] {
				e.Attempts++
			}
			kept = append(kept, e)
		}
		remaining = len(kept)
		return q.encode(kept)
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (q *PendingQueue) decode(raw string) ([]models.PendingEntry, error) {
	if strings.TrimSpace(raw) == "" {
		return []models.PendingEntry{}, nil
	}
	var entries []models.PendingEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, errors.NewStoreCorruptionError(q.key, err)
	}
	if entries == nil {
		entries = []models.PendingEntry{}
	}
	return entries, nil
}

func (q *PendingQueue) encode(entries []models.PendingEntry) (string, error) {
	if entries == nil {
		entries = []models.PendingEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode pending queue: %w", err)
	}
	return string(data), nil
}
