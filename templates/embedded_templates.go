// Package templates embeds the html pages served by the relay.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
)

const (
	templatesDir      = "tmpl"
	templateExtension = ".html"

	// RelayLanding is the page a scanned invite opens.
	RelayLanding = "relay/join.html"
)

//go:embed tmpl
var embeddedFiles embed.FS

// Load parses the template entries in templatesDir, keyed by their path without the templatesDir prefix.
// i.e. templates/tmpl/relay/join.html ---> map["relay/join.html" -> *template.Template].
func Load() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)
	err := fs.WalkDir(embeddedFiles, templatesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, templateExtension) {
			return nil
		}
		tmpl, err := template.ParseFS(embeddedFiles, path)
		if err != nil {
			return err
		}
		templates[strings.TrimPrefix(path, templatesDir+"/")] = tmpl
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing template files: %w", err)
	}
	return templates, nil
}
