package form

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templatesFS embed.FS

// TemplatesFS exposes the embedded document templates.
func TemplatesFS() fs.FS {
	return templatesFS
}
