package types

import (
	"net/url"
	"path"
	"strings"
)

// Object keys of the published report documents.
const (
	GlobalDashboardKey = "dashboard.json"
	dashboardFile      = "dashboard.json"
	batchFile          = "lote.json"
	consolidatedFile   = "report.json"

	// UnassignedSegment replaces an empty company or batch ID in object keys.
	UnassignedSegment = "unassigned"
)

// Segment returns id as a single object-key path segment. "%" and "/" are
// percent-escaped so an ID can never introduce extra nesting, and the dot
// segments "." and ".." are escaped so they can never collapse into or climb
// out of their parent.
func Segment(id string) string {
	id = strings.TrimSpace(id)
	switch id {
	case "":
		return UnassignedSegment
	case ".", "..":
		return strings.Repeat("%2E", len(id))
	}
	return segmentEscaper.Replace(id)
}

var segmentEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

// SegmentID reverses Segment. UnassignedSegment maps back to "".
// A segment with a malformed escape is returned as-is.
func SegmentID(segment string) string {
	if segment == UnassignedSegment {
		return ""
	}
	id, err := url.PathUnescape(segment)
	if err != nil {
		return segment
	}
	return id
}

// DashboardKey is the key of a company's dashboard in the per-company layout.
func DashboardKey(company string) string {
	return path.Join(Segment(company), dashboardFile)
}

// BatchKey is the key of one batch report in the per-company layout.
func BatchKey(company, batchID string) string {
	return path.Join(Segment(company), Segment(batchID), batchFile)
}

// ConsolidatedKey is the key of a company's single document in the
// consolidated layout.
func ConsolidatedKey(company string) string {
	return path.Join(Segment(company), consolidatedFile)
}

// IsDashboardKey reports whether key names a company dashboard document.
func IsDashboardKey(key string) bool {
	parts := strings.Split(key, "/")
	return len(parts) == 2 && parts[1] == dashboardFile
}

// IsBatchKey reports whether key names a batch report document.
func IsBatchKey(key string) bool {
	parts := strings.Split(key, "/")
	return len(parts) == 3 && parts[2] == batchFile
}

// IsConsolidatedKey reports whether key names a consolidated company document.
func IsConsolidatedKey(key string) bool {
	parts := strings.Split(key, "/")
	return len(parts) == 2 && parts[1] == consolidatedFile
}

// IsReportKey reports whether key names any published report document.
func IsReportKey(key string) bool {
	return key == GlobalDashboardKey || IsDashboardKey(key) || IsBatchKey(key) || IsConsolidatedKey(key)
}
