package models

import "time"

// Record statuses. Deletes are soft: the row stays with StatusDeleted.
const (
	RecordActive  = "active"
	RecordDeleted = "deleted"
)

// Record is one authoritative row of an entity table.
type Record struct {
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Fields    map[string]any `json:"fields"` // entity columns, see entity.Columns
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Status    string         `json:"status"`
	Version   int64          `json:"version"`
}

// Deleted reports whether the record was soft-deleted.
func (r *Record) Deleted() bool {
	return r.Status == RecordDeleted
}

// Snapshot flattens the record into the shape returned to replicas as
// server_data on a conflict.
func (r *Record) Snapshot() map[string]any {
	out := make(map[string]any, len(r.Fields)+6)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["tenant_id"] = r.TenantID
	out["status"] = r.Status
	out["version"] = r.Version
	out["created_at"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	out["updated_at"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return out
}

// Clone returns a copy that does not share the Fields map.
func (r *Record) Clone() *Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	c := *r
	c.Fields = fields
	return &c
}
