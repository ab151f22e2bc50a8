package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-memory, thread-safe Log implementation for tests and
// single-process development runs. The Querier argument is ignored.
type MemoryLog struct {
	mu    sync.RWMutex
	rings map[uuid.UUID][]*Entry
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{rings: make(map[uuid.UUID][]*Entry)}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, _ Querier, rec Record) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal audit metadata: %w", err)
	}

	chain := l.rings[rec.RingID]
	prevHash := GenesisHash
	if len(chain) > 0 {
		prevHash = chain[len(chain)-1].EntryHash
	}

	entry := &Entry{
		ID:        uuid.New(),
		RingID:    rec.RingID,
		Index:     len(chain) + 1,
		Action:    rec.Action,
		ActorDID:  rec.ActorDID,
		TargetDID: rec.TargetDID,
		Metadata:  rec.Metadata,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		DataHash:  sha256Sum(metaJSON),
		PrevHash:  prevHash,
	}
	entry.EntryHash = hashEntry(entry)
	l.rings[rec.RingID] = append(chain, entry)
	return entry, nil
}

// Query implements Log.
func (l *MemoryLog) Query(_ context.Context, ringID uuid.UUID, f Filter) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chain := l.rings[ringID]
	var out []*Entry
	for i := len(chain) - 1; i >= 0; i-- {
		e := chain[i]
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ActorDID != "" && e.ActorDID != f.ActorDID {
			continue
		}
		if f.TargetDID != "" && e.TargetDID != f.TargetDID {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && e.Timestamp.After(*f.Until) {
			continue
		}
		out = append(out, e)
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Verify implements Log.
func (l *MemoryLog) Verify(_ context.Context, ringID uuid.UUID) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := GenesisHash
	for i, curr := range l.rings[ringID] {
		if curr.Index != i+1 {
			return fmt.Errorf("audit chain gap at index %d (expected %d)", curr.Index, i+1)
		}
		if curr.PrevHash != prevHash {
			return fmt.Errorf("audit chain broken at index %d", curr.Index)
		}
		if curr.EntryHash != hashEntry(curr) {
			return fmt.Errorf("audit entry %d has invalid hash", curr.Index)
		}
		prevHash = curr.EntryHash
	}
	return nil
}

// Tip implements Log.
func (l *MemoryLog) Tip(_ context.Context, ringID uuid.UUID) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	chain := l.rings[ringID]
	if len(chain) == 0 {
		return GenesisHash, nil
	}
	return chain[len(chain)-1].EntryHash, nil
}
