package batchsign

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// IsFileList reports whether name refers to a list of files rather than a
// file to sign.
func IsFileList(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".txt")
}

// LoadFileList reads a list file and returns its entries resolved against
// the list file's directory. Blank lines and a leading UTF-8 byte order
// mark are skipped.
func LoadFileList(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file list: %w", err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file list directory: %w", err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	lines := strings.Split(string(data), "\n")
	lines = lo.Map(lines, func(line string, _ int) string {
		return strings.TrimRight(line, "\r")
	})
	lines = lo.Filter(lines, func(line string, _ int) bool {
		return strings.TrimSpace(line) != ""
	})

	return lo.Map(lines, func(line string, _ int) string {
		if filepath.IsAbs(line) {
			return line
		}
		return filepath.Join(dir, line)
	}), nil
}
