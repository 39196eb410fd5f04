package gcalvault

import "strings"

// FileExtension is the extension of every calendar file written to the output directory.
const FileExtension = ".ics"

// AccessRole is the caller's permission level on a calendar.
type AccessRole string

const (
	RoleOwner          AccessRole = "owner"
	RoleWriter         AccessRole = "writer"
	RoleReader         AccessRole = "reader"
	RoleFreeBusyReader AccessRole = "freeBusyReader"
)

// Calendar is one remote calendar as seen during a sync pass.
type Calendar struct {
	ID         string
	Name       string
	VersionTag string
	AccessRole AccessRole
}

// FileName returns the calendar's file name in the output directory.
func (c *Calendar) FileName() string {
	return FileName(c.ID)
}

// FileName maps a calendar ID to its local file name. The mapping is pure:
// the write path and the cleanup path must agree on it.
func FileName(calendarID string) string {
	return strings.ToLower(strings.TrimSpace(calendarID)) + FileExtension
}

// NormalizeIdentity trims and lowercases an account email so that stored
// identities and provider-reported identities compare equal.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// RoleExcluded reports whether role appears in excluded, ignoring case.
func RoleExcluded(role AccessRole, excluded []string) bool {
	for _, r := range excluded {
		if strings.EqualFold(strings.TrimSpace(r), string(role)) {
			return true
		}
	}
	return false
}
