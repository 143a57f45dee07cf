// Package campaign detects campaign-originated traffic and drives the
// confirmation / re-dispatch flow for replies to campaign messages.
package campaign

import "regexp"

// Marker is the zero-width non-joiner embedded in every campaign-generated
// outbound body. It is invisible to the recipient but lets the pipeline
// recognize campaign traffic among ordinary outbound messages.
const Marker = "‌"

var markerPattern = regexp.MustCompile(Marker)

// HasMarker reports whether a body was produced by the campaign sender.
func HasMarker(body string) bool {
	return markerPattern.MatchString(body)
}

// StripMarker removes the marker from a body, for display and search.
func StripMarker(body string) string {
	return markerPattern.ReplaceAllString(body, "")
}
