// Package models provides data model definitions for the SmartTour core.
package models

import (
	"encoding/json"
	"net/http"
	"time"
)

// ActionType is the kind of mutation an offline action replays.
type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Method returns the HTTP method the action replays with, or "" when unknown.
func (t ActionType) Method() string {
	switch t {
	case ActionCreate:
		return http.MethodPost
	case ActionUpdate:
		return http.MethodPut
	case ActionDelete:
		return http.MethodDelete
	}
	return ""
}

// OfflineAction is a mutation recorded while offline, replayed on sync.
type OfflineAction struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	Endpoint  string          `json:"endpoint"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// Time returns Timestamp as time.Time.
func (a *OfflineAction) Time() time.Time {
	return time.UnixMilli(a.Timestamp)
}

// SyncQueueRow is the persisted form of an OfflineAction.
type SyncQueueRow struct {
	Seq       int64           `db:"seq" json:"seq"`
	ID        string          `db:"id" json:"id"`
	TableName string          `db:"table_name" json:"table_name,omitempty"`
	Action    ActionType      `db:"action" json:"action"`
	Endpoint  string          `db:"endpoint" json:"endpoint"`
	Data      json.RawMessage `db:"data" json:"data,omitempty"`
	CreatedAt int64           `db:"created_at" json:"created_at"` // Unix milliseconds
	Synced    bool            `db:"synced" json:"synced"`
	Attempts  int             `db:"attempts" json:"attempts"`
	LastError string          `db:"last_error" json:"last_error,omitempty"`
}

// Table returns the table name for SyncQueueRow.
func (SyncQueueRow) Table() string {
	return "sync_queue"
}

// OfflineAction converts the row to the OfflineAction it records.
func (r *SyncQueueRow) OfflineAction() OfflineAction {
	return OfflineAction{
		ID:        r.ID,
		Type:      r.Action,
		Endpoint:  r.Endpoint,
		Data:      r.Data,
		Timestamp: r.CreatedAt,
	}
}
