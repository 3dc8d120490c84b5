package io

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fberrors.New(fberrors.ErrCodeInvalidFormat, "unsupported document format %q (use json or yaml)", s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fberrors.New(fberrors.ErrCodeInvalidFormat, "cannot infer format of %q", path)
	}
	return ParseFormat(ext)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// WriteJSON encodes doc as indented JSON.
func WriteJSON(doc Document, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// WriteYAML encodes doc as YAML.
func WriteYAML(doc Document, w io.Writer) error {
	nodes := make([]Node, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if n.Data != nil {
			n.Data = yamlNumbers(n.Data).(map[string]any)
		}
		nodes[i] = n
	}
	doc.Nodes = nodes
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return enc.Close()
}

// Write encodes doc in format f.
func Write(doc Document, f Format, w io.Writer) error {
	switch f {
	case FormatJSON:
		return WriteJSON(doc, w)
	case FormatYAML:
		return WriteYAML(doc, w)
	}
	return fberrors.New(fberrors.ErrCodeInvalidFormat, "unsupported document format %q", f)
}

// Marshal returns doc encoded in format f.
func Marshal(doc Document, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(doc, f, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadJSON decodes a JSON document from r. Numbers in node data are kept as
// json.Number. Only syntax is checked here; see [Import].
func ReadJSON(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fberrors.Wrap(fberrors.ErrCodeMalformedDocument, err, "decode json")
	}
	return doc, nil
}

// ReadYAML decodes a YAML document from r.
func ReadYAML(r io.Reader) (Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fberrors.Wrap(fberrors.ErrCodeMalformedDocument, err, "decode yaml")
	}
	return doc, nil
}

// Read decodes a document in format f.
func Read(r io.Reader, f Format) (Document, error) {
	switch f {
	case FormatJSON:
		return ReadJSON(r)
	case FormatYAML:
		return ReadYAML(r)
	}
	return Document{}, fberrors.New(fberrors.ErrCodeInvalidFormat, "unsupported document format %q", f)
}

// Unmarshal decodes data in format f.
func Unmarshal(data []byte, f Format) (Document, error) {
	return Read(bytes.NewReader(data), f)
}
