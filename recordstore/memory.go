package recordstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store, used for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record // key: tenantID + "/" + recordID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func rkey(tenantID, recordID string) string { return tenantID + "/" + recordID }

// CreateRecord implements Store.
func (s *MemoryStore) CreateRecord(_ context.Context, tenantID string, r Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.RecordID == "" {
		r.RecordID = uuid.NewString()
	}
	r.TenantID = tenantID
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.IngestionData == nil {
		r.IngestionData = map[string]any{}
	}
	if r.ManagementData == nil {
		r.ManagementData = map[string]any{}
	}
	s.records[rkey(tenantID, r.RecordID)] = r
	return r.RecordID, nil
}

// MergeRecord implements Store.
func (s *MemoryStore) MergeRecord(_ context.Context, tenantID, recordID string, partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := rkey(tenantID, recordID)
	r, ok := s.records[k]
	if !ok {
		return fmt.Errorf("recordstore: record %s not found", recordID)
	}

	if v, ok := partial["ingestion_data"].(map[string]any); ok {
		r.IngestionData = DeepMerge(r.IngestionData, v)
	}
	if v, ok := partial["management_data"].(map[string]any); ok {
		r.ManagementData = DeepMerge(r.ManagementData, v)
	}
	if v, ok := partial["status"].(string); ok {
		r.Status = v
	}
	r.UpdatedAt = time.Now()
	s.records[k] = r
	return nil
}

// GetRecord implements Store.
func (s *MemoryStore) GetRecord(_ context.Context, tenantID, recordID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[rkey(tenantID, recordID)]
	if !ok {
		return nil, nil
	}
	out := r
	return &out, nil
}

// QueryRecords implements Store. filters is matched against top-level
// IngestionData keys by equality; an empty filter set matches everything
// in the domain.
func (s *MemoryStore) QueryRecords(_ context.Context, tenantID, domainID string, filters map[string]any, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.records {
		if r.TenantID != tenantID || r.DomainID != domainID {
			continue
		}
		if !matches(r, filters) {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(r Record, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := r.IngestionData[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
