// Package filer loads and saves JSON-encoded reference data: the
// area-code criteria table and the zip-centroid geo table are both
// read through this interface at startup.
package filer

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/totalhack/zar-numberpool/parser"
)

// JsonFiler reads and writes arbitrary values as JSON files.
type JsonFiler interface {
	Save(name string, v any) error
	Load(name string, out any) error
}

type jsonFiler struct {
	parser parser.Parser
}

// NewJsonLoader returns the encoding/json-backed JsonFiler.
func NewJsonLoader() JsonFiler {
	return &jsonFiler{parser: &parser.JSONParser{}}
}

func (f jsonFiler) Save(name string, v any) error {
	b, err := f.parser.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal failed")
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return fmt.Errorf("write file %q: %w", name, err)
	}
	return nil
}

func (f jsonFiler) Load(name string, out any) error {
	b, err := os.ReadFile(name)
	if err != nil {
		return errors.Wrap(err, "read file failed")
	}
	if err := f.parser.Unmarshal(b, out); err != nil {
		return errors.Wrap(err, "unmarshal failed")
	}
	return nil
}
