// Package catalog reads the on-disk show cache format used by the
// out-of-scope search/browse layer: one show per line, as
// "slug::::title", turning each line into a model.ShowRef. No package
// in this repository imports it (cmd/kurogo builds its ShowRef values
// from the YAML job list), and the core packages never depend on this
// format.
package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/kurogo/kurogo/internal/model"
)

const separator = "::::"

// ReadFile parses every non-empty line of path into a ShowRef, skipping
// malformed lines rather than failing the whole read.
func ReadFile(path string) ([]model.ShowRef, error) {
	f, err := os.Open(path) // #nosec G304 -- path is operator-supplied, not untrusted input
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var refs []model.ShowRef
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ref, err := parseLine(line)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, scanner.Err()
}

func parseLine(line string) (model.ShowRef, error) {
	idx := strings.Index(line, separator)
	if idx < 0 {
		return model.ShowRef{}, fmt.Errorf("malformed catalog line: %q", line)
	}
	slug := line[:idx]
	title := line[idx+len(separator):]
	if slug == "" || title == "" {
		return model.ShowRef{}, fmt.Errorf("malformed catalog line: %q", line)
	}
	return model.ShowRef{ID: slug, Title: title}, nil
}
