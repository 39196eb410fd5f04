package changes

import (
	"fmt"

	"gcalvault/internal/gcalvault"
)

// Store persists the last version tag seen per calendar.
type Store interface {
	// GetTag returns the stored tag and whether one exists.
	GetTag(calendarID string) (string, bool, error)

	// PutTag stores tag for calendarID, replacing any previous value.
	PutTag(calendarID, tag string) error
}

// Detector decides whether a calendar needs downloading by comparing
// version tags against a Store.
type Detector struct {
	store Store
}

var _ gcalvault.ChangeDetector = (*Detector)(nil)

// NewDetector creates a Detector backed by store.
func NewDetector(store Store) *Detector {
	return &Detector{store: store}
}

// TestAndUpdate reports whether tag is new for calendarID and records it.
func (d *Detector) TestAndUpdate(calendarID, tag string) (bool, error) {
	changed, err := d.Changed(calendarID, tag)
	if err != nil {
		return false, err
	}
	if err := d.Record(calendarID, tag); err != nil {
		return false, err
	}
	return changed, nil
}

// Changed reports whether tag differs from the stored tag, or no tag is stored.
func (d *Detector) Changed(calendarID, tag string) (bool, error) {
	prior, ok, err := d.store.GetTag(calendarID)
	if err != nil {
		return false, fmt.Errorf("reading tag for %s: %w", calendarID, err)
	}
	return !ok || prior != tag, nil
}

// Record stores tag as the last one seen for calendarID.
func (d *Detector) Record(calendarID, tag string) error {
	if err := d.store.PutTag(calendarID, tag); err != nil {
		return fmt.Errorf("writing tag for %s: %w", calendarID, err)
	}
	return nil
}
