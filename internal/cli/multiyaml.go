package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseMultiYAML reads a file of one or more YAML documents, resolving
// {{ .ENV.X }} placeholders first.
func ParseMultiYAML(filename string) ([]map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	data = replaceTabsWithSpaces(data)

	data, err = PreprocessYAML(data)
	if err != nil {
		return nil, err
	}

	return ParseMultiYAMLFromBytes(data)
}

// ParseMultiYAMLFromBytes splits data into its YAML documents. Empty
// documents are skipped.
func ParseMultiYAMLFromBytes(data []byte) ([]map[string]any, error) {
	content := strings.TrimSpace(string(data))
	if len(content) == 0 || strings.Trim(content, "- \n\t") == "" {
		return []map[string]any{}, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var result []map[string]any

	for {
		var doc map[string]any
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML: %w", err)
		}
		// trailing --- yields an empty document
		if len(doc) > 0 {
			result = append(result, doc)
		}
	}

	return result, nil
}

// decodeDocs converts parsed documents into records of type T. Field names are
// the JSON names the server uses.
func decodeDocs[T any](docs []map[string]any) ([]T, error) {
	out := make([]T, 0, len(docs))
	for i, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		var v T
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func replaceTabsWithSpaces(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte("\t"), []byte("  "))
}
