// Package recordstore defines the narrow interface the core uses to
// create, merge and query the schemaless documents produced by ingestion
// and mutated by management (spec §3 "Record", §6 "Record Store
// interface"), plus an in-memory and a SQLite-backed adapter.
package recordstore

import (
	"context"
	"time"
)

// Record is the schemaless document the core reads/writes (spec §3).
type Record struct {
	RecordID       string         `json:"record_id"`
	TenantID       string         `json:"tenant_id"`
	DomainID       string         `json:"domain_id"`
	RawInput       string         `json:"raw_input"`
	IngestionData  map[string]any `json:"ingestion_data"`
	ManagementData map[string]any `json:"management_data"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Store is the interface the core requires of its record-store
// collaborator (spec §6). MergeRecord performs a deep merge of partial into
// the existing document; any "history" array nested in the partial is
// appended to rather than replaced (spec §3 "append-only history", §6
// "history arrays append").
type Store interface {
	CreateRecord(ctx context.Context, tenantID string, r Record) (recordID string, err error)
	MergeRecord(ctx context.Context, tenantID, recordID string, partial map[string]any) error
	QueryRecords(ctx context.Context, tenantID, domainID string, filters map[string]any, limit int) ([]Record, error)
	GetRecord(ctx context.Context, tenantID, recordID string) (*Record, error)
}

// DeepMerge merges src into dst in place and returns dst. Keys named
// "history" hold arrays that are appended rather than overwritten; any
// other nested map is merged recursively; scalars and other slices are
// replaced outright.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		if k == "history" {
			existing, _ := dst[k].([]any)
			incoming := toAnySlice(v)
			dst[k] = append(append([]any{}, existing...), incoming...)
			continue
		}

		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				dst[k] = DeepMerge(dstMap, srcMap)
				continue
			}
			dst[k] = DeepMerge(map[string]any{}, srcMap)
			continue
		}

		dst[k] = v
	}
	return dst
}

func toAnySlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	default:
		return []any{t}
	}
}
