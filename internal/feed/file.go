package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Compile-time check to verify that FileSource implements Source.
var _ Source = (*FileSource)(nil)

// FileSource reads the two feeds from local files. Files ending in .yaml or .yml
// are decoded as YAML and re-encoded as JSON; anything else is read as JSON.
type FileSource struct {
	experimentsPath string
	segmentsPath    string
}

// NewFileSource creates a source over the two feed files.
func NewFileSource(experimentsPath, segmentsPath string) *FileSource {
	return &FileSource{experimentsPath: experimentsPath, segmentsPath: segmentsPath}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Paths returns the experiments and segments file paths.
func (s *FileSource) Paths() []string {
	return []string{s.experimentsPath, s.segmentsPath}
}

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, err
	}

	experiments, err := readFeedFile(s.experimentsPath)
	if err != nil {
		return Payload{}, err
	}
	segments, err := readFeedFile(s.segmentsPath)
	if err != nil {
		return Payload{}, err
	}

	return Payload{Experiments: experiments, Segments: segments}, nil
}

func readFeedFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("feed %s: %w", path, ErrEmptyFeed)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err := YAMLToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", path, err)
		}
		return doc, nil
	default:
		return raw, nil
	}
}

// YAMLToJSON converts a YAML document into the equivalent JSON document.
// Unquoted timestamps are rendered in RFC 3339.
func YAMLToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	normalized, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode yaml as json: %w", err)
	}
	return out, nil
}

// jsonCompatible rewrites the values yaml.v3 produces that encoding/json rejects.
func jsonCompatible(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			conv, err := jsonCompatible(val)
			if err != nil {
				return nil, err
			}
			t[k] = conv
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("yaml key %v is not a string", k)
			}
			conv, err := jsonCompatible(val)
			if err != nil {
				return nil, err
			}
			out[key] = conv
		}
		return out, nil
	case []any:
		for i, val := range t {
			conv, err := jsonCompatible(val)
			if err != nil {
				return nil, err
			}
			t[i] = conv
		}
		return t, nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	default:
		return v, nil
	}
}
