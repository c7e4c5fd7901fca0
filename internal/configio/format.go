// Package configio loads and saves structured configuration data independent of
// its on-disk format.
//
// The format is chosen from the file extension and, when loading a file whose
// extension says nothing, by sniffing its content. Optional transformers wrap the
// encoded bytes (encryption, signature) without the caller knowing.
package configio

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/foundation/normalization"
)

// Format is an on-disk encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

var formatNormalizer = normalization.NewNormalizer(map[string]Format{
	"yaml": FormatYAML,
	"yml":  FormatYAML,
	"json": FormatJSON,
	"text": FormatText,
	"txt":  FormatText,
}, "")

// ParseFormat normalizes a user-supplied format name. Empty input yields "".
func ParseFormat(raw string) (Format, error) {
	return formatNormalizer.NormalizeWithError(raw)
}

// FormatForPath infers the format from the file extension, or "" if unknown.
func FormatForPath(path string) Format {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return ""
	}
	return formatNormalizer.Normalize(ext)
}

// Sniff guesses the format of data.
func Sniff(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return FormatText
	}
	if (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return FormatJSON
	}
	var probe map[string]any
	if err := yaml.Unmarshal(trimmed, &probe); err == nil && probe != nil {
		return FormatYAML
	}
	return FormatText
}

// Marshal encodes v in format.
func Marshal(format Format, v any) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, serializationError(err, format, "encode")
		}
		return append(data, '\n'), nil
	case FormatText:
		return marshalText(v)
	case FormatYAML, "":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, serializationError(err, FormatYAML, "encode")
		}
		if err := enc.Close(); err != nil {
			return nil, serializationError(err, FormatYAML, "encode")
		}
		return buf.Bytes(), nil
	}
	return nil, ferrors.ValidationError(fmt.Sprintf("unsupported format %q", format)).Build()
}

// Unmarshal decodes data in format into v. Unknown fields are rejected for
// structured formats.
func Unmarshal(format Format, data []byte, v any) error {
	if format == "" {
		format = Sniff(data)
	}
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return serializationError(err, format, "decode")
		}
		return nil
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return serializationError(err, format, "decode")
		}
		return nil
	case FormatText:
		return unmarshalText(data, v)
	}
	return ferrors.ValidationError(fmt.Sprintf("unsupported format %q", format)).Build()
}

func marshalText(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return bytes.Clone(t), nil
	case encoding.TextMarshaler:
		data, err := t.MarshalText()
		if err != nil {
			return nil, serializationError(err, FormatText, "encode")
		}
		return data, nil
	case fmt.Stringer:
		return []byte(t.String()), nil
	}
	return nil, ferrors.ValidationError(fmt.Sprintf("text format cannot encode %T", v)).Build()
}

func unmarshalText(data []byte, v any) error {
	switch t := v.(type) {
	case *string:
		*t = string(data)
		return nil
	case *[]byte:
		*t = bytes.Clone(data)
		return nil
	case encoding.TextUnmarshaler:
		if err := t.UnmarshalText(data); err != nil {
			return serializationError(err, FormatText, "decode")
		}
		return nil
	}
	return ferrors.ValidationError(fmt.Sprintf("text format cannot decode into %T", v)).Build()
}

func serializationError(err error, format Format, op string) error {
	return ferrors.WrapError(err, ferrors.CategoryState, fmt.Sprintf("failed to %s %s", op, format)).
		WithContext("format", string(format)).
		Build()
}
