package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/desertthunder/dynlist/internal/shared"
	"gopkg.in/yaml.v3"
)

// Interchange formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// NormalizeFormat maps a format name or alias to FormatJSON or FormatYAML.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unsupported document format %q", shared.ErrInvalidArgument, format)
	}
}

// FormatFromPath picks the document format from a file extension, defaulting to JSON.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode serializes documents. A single document is written as an object,
// several as a list.
func Encode(format string, docs ...Document) ([]byte, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}

	if len(docs) == 1 {
		return encode(format, docs[0])
	}
	return encode(format, docs)
}

// EncodeList serializes documents as a list regardless of how many there are.
func EncodeList(format string, docs []Document) ([]byte, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []Document{}
	}
	return encode(format, docs)
}

func encode(format string, v any) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		return buf.Bytes(), nil
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON: %w", err)
		}
		return append(data, '\n'), nil
	}
}

// Decode parses one document. Unknown attributes are rejected.
func Decode(data []byte, format string) (Document, error) {
	docs, err := DecodeAll(data, format)
	if err != nil {
		return Document{}, err
	}
	if len(docs) != 1 {
		return Document{}, &shared.ImportError{Err: fmt.Errorf("expected one document, found %d", len(docs))}
	}
	return docs[0], nil
}

// DecodeAll parses a single document or a list of documents. Errors are
// [shared.ImportError]s.
func DecodeAll(data []byte, format string) ([]Document, error) {
	format, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}

	var docs []Document
	switch format {
	case FormatYAML:
		docs, err = decodeYAML(data)
	default:
		docs, err = decodeJSON(data)
	}
	if err != nil {
		return nil, &shared.ImportError{Err: err}
	}
	return docs, nil
}

func decodeJSON(data []byte) ([]Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var docs []Document
	if trimmed[0] == '[' {
		if err := dec.Decode(&docs); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	} else {
		var doc Document
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		docs = []Document{doc}
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("invalid JSON: unexpected data after offset %d", dec.InputOffset())
	}
	return docs, nil
}

func decodeYAML(data []byte) ([]Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.New("empty document")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if root.Content[0].Kind == yaml.SequenceNode {
		var docs []Document
		if err := dec.Decode(&docs); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return docs, nil
	}

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return []Document{doc}, nil
}
