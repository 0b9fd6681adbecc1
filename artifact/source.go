package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies the encoding of a serialized model artifact
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrNotFound is returned when a source holds no artifact under the requested name
var ErrNotFound = errors.New("model artifact not found")

// Blob is a serialized model artifact together with its encoding
type Blob struct {
	Name   string
	Format Format
	Data   []byte
}

// Source provides the serialized model artifact.
// Implementations are read once, at process start-up.
type Source interface {
	// Load fetches the artifact bytes
	Load(ctx context.Context) (*Blob, error)

	// Describe returns a human readable location for logs
	Describe() string
}

// ParseFormat converts a format name to a Format
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown artifact format %q (must be json or yaml)", name)
	}
}

// FileSource reads the artifact from a file on disk
type FileSource struct {
	Path string
}

// NewFileSource creates a FileSource for path
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads the file. The format follows the file extension; anything other
// than .yaml or .yml is treated as JSON.
func (s *FileSource) Load(ctx context.Context) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	format := FormatJSON
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}

	return &Blob{
		Name:   strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path)),
		Format: format,
		Data:   data,
	}, nil
}

// Describe returns the file path
func (s *FileSource) Describe() string {
	return "file://" + s.Path
}
