package notification

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"
)

// renderText executes a text template against data. An empty source renders to "".
func renderText(src string, data map[string]string) (string, error) {
	if src == "" {
		return "", nil
	}
	tmpl, err := template.New("text").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderHTML is renderText with contextual HTML escaping.
func renderHTML(src string, data map[string]string) (string, error) {
	if src == "" {
		return "", nil
	}
	tmpl, err := htmltemplate.New("html").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
