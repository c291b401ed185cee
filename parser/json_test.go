package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONParser_Marshal(t *testing.T) {
	type testStruct struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	tests := []struct {
		name    string
		input   any
		want    []byte
		wantErr bool
	}{
		{
			name:  "struct to JSON",
			input: testStruct{Name: "Alice", Age: 30},
			want:  []byte(`{"name":"Alice","age":30}`),
		},
		{
			name:  "nil to JSON",
			input: nil,
			want:  []byte(`null`),
		},
		{
			name:    "unmarshalable value",
			input:   func() {},
			wantErr: true,
		},
	}

	p := &JSONParser{}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Marshal(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)

			var v any
			assert.NoError(t, json.Unmarshal(got, &v))
		})
	}
}

func TestJSONParser_Unmarshal(t *testing.T) {
	type testStruct struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	tests := []struct {
		name    string
		input   []byte
		want    *testStruct
		wantErr bool
	}{
		{
			name:  "JSON to struct",
			input: []byte(`{"name":"Bob","age":25}`),
			want:  &testStruct{Name: "Bob", Age: 25},
		},
		{
			name:  "empty object",
			input: []byte(`{}`),
			want:  &testStruct{},
		},
		{
			name:    "malformed JSON",
			input:   []byte(`{"name":"Bob","age":25`),
			wantErr: true,
		},
		{
			name:    "type mismatch",
			input:   []byte(`{"name":123,"age":"invalid"}`),
			wantErr: true,
		},
	}

	p := &JSONParser{}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &testStruct{}
			err := p.Unmarshal(tt.input, target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, target)
		})
	}
}
