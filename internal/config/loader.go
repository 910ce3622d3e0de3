package config

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"

	"qba/internal/qbaerr"
)

// Load reads the analysis file at path on top of base.
func Load(path string, base Analysis) (Analysis, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Analysis{}, &qbaerr.Error{
			Op:     "config.load",
			Kind:   qbaerr.KindSchema,
			Detail: path,
			Err:    err,
		}
	}
	return Parse(path, b, base)
}

// Parse decodes an analysis document. path is used to resolve the dataset
// location and in error messages.
func Parse(path string, b []byte, base Analysis) (Analysis, error) {
	var dto YAMLAnalysis
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&dto); err != nil {
		return Analysis{}, &qbaerr.Error{
			Op:     "config.parse",
			Kind:   qbaerr.KindSchema,
			Detail: path,
			Err:    err,
		}
	}
	return MapAnalysis(path, dto, base)
}
