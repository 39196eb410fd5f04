package gcalvault

// ChangeDetector remembers the last version tag seen for each calendar.
type ChangeDetector interface {
	// TestAndUpdate reports whether tag differs from the stored one (or none is stored)
	// and stores tag before returning.
	TestAndUpdate(calendarID, tag string) (bool, error)

	// Changed is the read-only half of TestAndUpdate.
	Changed(calendarID, tag string) (bool, error)

	// Record stores tag as the last one seen for calendarID.
	Record(calendarID, tag string) error
}
