package storage

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig"
)

// LoadScriptName is the name of the helper script rendered into the storage
// root after a successful run.
const LoadScriptName = "load-images.sh"

var loadScriptTmpl = template.Must(template.New("").Funcs(sprig.TxtFuncMap()).Parse(`#!/bin/sh
# Loads every archived image in this directory into the local docker daemon.
# Copy this directory to the target machine and run the script there.
set -e
cd "$(dirname "$0")"
{{- range .Artifacts }}
{{- if hasSuffix ".zip" . }}
unzip -o {{ . | quote }}
docker load -i {{ printf "%s.tar" (trimSuffix ".zip" .) | quote }}
rm -f {{ printf "%s.tar" (trimSuffix ".zip" .) | quote }}
{{- else }}
docker load -i {{ . | quote }}
{{- end }}
{{- end }}
`))

// WriteLoadScript renders the docker-load helper for every artifact currently
// in the root and writes it alongside them. It returns the script path.
func (d *Directory) WriteLoadScript() (string, error) {
	artifacts, err := d.Artifacts()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := loadScriptTmpl.Execute(&buf, map[string]interface{}{"Artifacts": artifacts}); err != nil {
		return "", err
	}
	scriptPath := filepath.Join(d.root, LoadScriptName)
	if err := ioutil.WriteFile(scriptPath, buf.Bytes(), 0755); err != nil {
		return "", err
	}
	return scriptPath, nil
}
