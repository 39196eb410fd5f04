package app

import (
	"errors"
	"testing"

	"gcalvault/internal/database"
	"gcalvault/internal/gcalvault"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "sync",
			parameters: "work@example.com",
		},
		{
			name:       "empty parameters",
			operation:  "clean-sync",
			parameters: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters)

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != database.StatusSuccess {
				t.Errorf("Status = %q, want %q", op.Status, database.StatusSuccess)
			}
			if op.ID != 0 {
				t.Errorf("ID = %d, want 0", op.ID)
			}
		})
	}
}

func TestOperation_Persisted(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{name: "not persisted when ID is 0", id: 0, want: false},
		{name: "persisted when ID is positive", id: 1, want: true},
		{name: "persisted when ID is large", id: 99999, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Operation{ID: tt.id}
			if got := op.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_Finish(t *testing.T) {
	op := NewOperation("sync", "")
	report := &gcalvault.SyncReport{Fetched: 2}

	op.Finish(report, errors.New("boom"))
	if op.Status != database.StatusFailed {
		t.Errorf("Status = %q, want %q", op.Status, database.StatusFailed)
	}
	if op.Report != report {
		t.Error("Report not kept")
	}

	op.Finish(report, nil)
	if op.Status != database.StatusSuccess {
		t.Errorf("Status = %q, want %q", op.Status, database.StatusSuccess)
	}
}
