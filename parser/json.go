package parser

import "encoding/json"

// JSONParser is the encoding/json-backed Parser.
type JSONParser struct{}

func (p *JSONParser) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (p *JSONParser) Unmarshal(b []byte, v any) error {
	return json.Unmarshal(b, v)
}
