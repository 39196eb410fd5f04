package app

import (
	"gcalvault/internal/database"
	"gcalvault/internal/gcalvault"
)

// Operation tracks a CLI run that is recorded in the sync history.
// Operations are created in memory with ID=0. Only commands that sync
// persist them (giving them an auto-increment ID from the database).
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string // database.StatusSuccess or database.StatusFailed
	Report     *gcalvault.SyncReport
}

// NewOperation creates a new in-memory operation.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     database.StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Finish records the outcome of the run. A non-nil err marks it failed.
func (op *Operation) Finish(report *gcalvault.SyncReport, err error) {
	op.Report = report
	if err != nil {
		op.Status = database.StatusFailed
	} else {
		op.Status = database.StatusSuccess
	}
}
