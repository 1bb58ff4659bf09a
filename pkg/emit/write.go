package emit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/flatcargo/pkg/errors"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DefaultOutput is the file name written when no output is given.
const DefaultOutput = "cargo-sources.json"

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be one of: json, yaml)", s)
	}
}

// FormatForPath guesses the format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Marshal encodes sources in the given format.
func Marshal(sources []Source, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, sources, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes sources to w.
func Write(w io.Writer, sources []Source, format Format) error {
	if sources == nil {
		sources = []Source{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(sources); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sources); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return enc.Close()
	default:
		return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q", format)
	}
}

// Digest returns a short content hash of encoded output.
func Digest(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Unchanged reports whether the file at path already holds data. A missing
// file is reported as changed.
func Unchanged(path string, data []byte) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", path)
	}
	return h.Sum64() == xxhash.Sum64(data), nil
}
