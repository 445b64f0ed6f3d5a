package form

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// ugcPolicy strips scripts and event handlers from remote-authored rich text.
// REDCap lets project designers put markup in field labels and section
// headers, so those cannot simply be entity-escaped without destroying
// legitimate formatting.
var ugcPolicy = bluemonday.UGCPolicy()

// sanitizeRichText cleans label/section-header markup authored in the remote
// project.
func sanitizeRichText(s string) string {
	return ugcPolicy.Sanitize(s)
}

// escape is the single escaping choke point for every interpolated value,
// name, and attribute in generated markup.
func escape(s string) string {
	return html.EscapeString(s)
}
