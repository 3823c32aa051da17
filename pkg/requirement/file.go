package requirement

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// ParseFile reads a requirements.txt file. See ReadFile.
func ParseFile(path string) ([]Requirement, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "%s not found", path)
		}
		return nil, err
	}
	defer f.Close()
	return ReadFile(path, f)
}

// ReadFile parses requirements.txt text from r. Blank lines, comments,
// pip options (-r, -e, --index-url, ...) and URL or VCS references are
// skipped; backslash continuations are joined. A name listed twice keeps
// its first entry. Parse errors name the file and line.
func ReadFile(path string, r io.Reader) ([]Requirement, error) {
	var (
		reqs    []Requirement
		seen    = make(map[string]bool)
		pending strings.Builder
		start   int
	)

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if pending.Len() == 0 {
			start = n
		}
		if strings.HasSuffix(line, `\`) {
			pending.WriteString(strings.TrimSuffix(line, `\`))
			continue
		}
		pending.WriteString(line)
		text := stripComment(pending.String())
		pending.Reset()

		if text == "" || text[0] == '-' || strings.Contains(text, "://") || strings.HasPrefix(text, "git+") {
			continue
		}
		req, err := Parse(text)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "%s", location(path, start))
		}
		if !seen[req.Name] {
			seen[req.Name] = true
			reqs = append(reqs, req)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// stripComment drops a trailing "# ..." comment. pip only treats "#" as a
// comment at the start of a line or after whitespace.
func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t') {
			line = line[:i]
			break
		}
	}
	return strings.TrimSpace(line)
}

func location(path string, line int) string {
	return fmt.Sprintf("%s:%d", path, line)
}
