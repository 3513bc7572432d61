// Package languages derives a language name from a file path. The mapping
// ships embedded in the binary and is loaded once at package init.
package languages

import (
	_ "embed"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var mappingYAML []byte

type mapping struct {
	Extensions map[string]string `yaml:"extensions"`
	Filenames  map[string]string `yaml:"filenames"`
}

var table mapping

func init() {
	if err := yaml.Unmarshal(mappingYAML, &table); err != nil {
		panic(fmt.Sprintf("languages: parse embedded mapping: %v", err))
	}
}

// Detect returns the language for a file path, or "Text" when unknown.
func Detect(filePath string) string {
	base := path.Base(filePath)
	if lang, ok := table.Filenames[base]; ok {
		return lang
	}

	ext := strings.ToLower(path.Ext(base))
	if lang, ok := table.Extensions[ext]; ok {
		return lang
	}
	return "Text"
}

// Known reports whether the path maps to a known language.
func Known(filePath string) bool {
	base := path.Base(filePath)
	if _, ok := table.Filenames[base]; ok {
		return true
	}
	_, ok := table.Extensions[strings.ToLower(path.Ext(base))]
	return ok
}
