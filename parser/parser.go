// Package parser abstracts (de)serialization of stored values so
// numberpool/areacode/catalog don't call encoding/json ad hoc at every
// call site.
package parser

import "fmt"

// ErrTypeAssert is returned when a decoded value has an unexpected
// underlying type.
var ErrTypeAssert = fmt.Errorf("type assert error")

// Parser marshals and unmarshals arbitrary values.
type Parser interface {
	Marshal(any) ([]byte, error)
	Unmarshal([]byte, any) error
}
