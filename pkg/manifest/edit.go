package manifest

import (
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// AddDependency adds req to the main dependencies (group "") or to the
// named group. A requirement with the same name already in that list is
// replaced in place; otherwise req is appended after the last item in the
// array's own layout. Comments inside the array are kept.
//
// The change is applied to the in-memory document; call Save to persist.
func (m *Manifest) AddDependency(req requirement.Requirement, group string) error {
	path := m.groupPath(group)
	src := string(m.raw)
	doc, err := scanDocument(src)
	if err != nil {
		return err
	}

	entry := quoteString(req.String())
	var out string
	if key, ok := doc.key(path); ok {
		items, err := parseArray(src, key)
		if err != nil {
			return err
		}
		if i := slices.IndexFunc(items, func(it arrayItem) bool { return it.name == req.Name }); i >= 0 {
			out = src[:items[i].start] + entry + src[items[i].end:]
		} else {
			out = appendItem(src, key, items, entry)
		}
	} else {
		out = doc.insert(src, path, "[\n    "+entry+",\n]")
	}
	return m.replace(out)
}

// RemoveDependency removes every requirement named name from the main
// dependencies and from every group. Each item is cut together with its
// trailing comma, and with its whole line when it stands on a line of its
// own. It reports whether anything was removed.
func (m *Manifest) RemoveDependency(name string) (bool, error) {
	name = requirement.NormalizeName(name)
	paths := [][]string{m.groupPath("")}
	for g := range m.OptionalDependencies {
		paths = append(paths, []string{"project", "optional-dependencies", g})
	}
	paths = append(paths, m.groupPath(DevGroup))
	slices.SortFunc(paths, func(a, b []string) int { return strings.Compare(strings.Join(a, "."), strings.Join(b, ".")) })
	paths = slices.CompactFunc(paths, func(a, b []string) bool { return slices.Equal(a, b) })

	src := string(m.raw)
	removed := false
	for _, path := range paths {
		for {
			doc, err := scanDocument(src)
			if err != nil {
				return false, err
			}
			key, ok := doc.key(path)
			if !ok {
				break
			}
			items, err := parseArray(src, key)
			if err != nil {
				return false, err
			}
			i := slices.IndexFunc(items, func(it arrayItem) bool { return it.name == name })
			if i < 0 {
				break
			}
			removed = true
			src = removeItem(src, key, items, i)
		}
	}
	if !removed {
		return false, nil
	}
	return true, m.replace(src)
}

// SetPython pins the interpreter under [tool.wheelhouse] python.
func (m *Manifest) SetPython(python string) error {
	path := []string{"tool", "wheelhouse", "python"}
	src := string(m.raw)
	doc, err := scanDocument(src)
	if err != nil {
		return err
	}
	value := quoteString(python)
	var out string
	if key, ok := doc.key(path); ok {
		out = src[:key.start] + value + src[key.end:]
	} else {
		out = doc.insert(src, path, value)
	}
	return m.replace(out)
}

// replace re-parses edited text and swaps it in only if it is still a
// valid manifest.
func (m *Manifest) replace(out string) error {
	next, err := ParseManifest(m.Path, []byte(out))
	if errors.Is(err, errors.ErrCodeInvalidManifest) {
		return err
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnsupported, err, "cannot edit %s in place", m.Path)
	}
	*m = *next
	return nil
}

// groupPath returns the key path of the array holding group.
func (m *Manifest) groupPath(group string) []string {
	switch {
	case group == "":
		return []string{"project", "dependencies"}
	case group == DevGroup && m.devIsTool():
		return []string{"tool", "wheelhouse", "dev-dependencies"}
	}
	for g := range m.OptionalDependencies {
		if requirement.NormalizeName(g) == requirement.NormalizeName(group) {
			return []string{"project", "optional-dependencies", g}
		}
	}
	return []string{"project", "optional-dependencies", group}
}

// devIsTool reports whether the dev group lives under [tool.wheelhouse]
// rather than in optional-dependencies.
func (m *Manifest) devIsTool() bool {
	for g := range m.OptionalDependencies {
		if requirement.NormalizeName(g) == DevGroup {
			return false
		}
	}
	return true
}

// span is a byte range [start, end) of src.
type span struct{ start, end int }

type keyValue struct {
	path []string
	span // value text
}

type table struct {
	path      []string
	bodyStart int // first byte after the header line
	end       int // start of the next header line, or len(src)
}

type document struct {
	keys   []keyValue
	tables []table // tables[0] is the root table
}

func (d *document) key(path []string) (keyValue, bool) {
	for _, k := range d.keys {
		if slices.Equal(k.path, path) {
			return k, true
		}
	}
	return keyValue{}, false
}

// insert adds `key = value` for a key that does not exist yet. The key goes
// into its table when the table has a header; otherwise a new header is
// placed after the closest enclosing table, or at the end of the document.
func (d *document) insert(src string, path []string, value string) string {
	tablePath, key := path[:len(path)-1], path[len(path)-1]
	line := renderKey([]string{key}) + " = " + value + "\n"

	for _, t := range d.tables[1:] {
		if slices.Equal(t.path, tablePath) {
			return insertAt(src, bodyEnd(src, t), line)
		}
	}

	// The table may exist only through dotted keys such as
	// `optional-dependencies.socks = [...]` inside [project].
	for i := len(d.keys) - 1; i >= 0; i-- {
		k := d.keys[i]
		if len(k.path) <= len(tablePath) || !slices.Equal(k.path[:len(tablePath)], tablePath) {
			continue
		}
		owner := d.tableAt(k.start)
		if len(owner.path) < len(tablePath) {
			dotted := renderKey(path[len(owner.path):]) + " = " + value + "\n"
			return insertAt(src, lineEnd(src, k.end), dotted)
		}
	}

	block := "[" + renderKey(tablePath) + "]\n" + line
	best := -1
	for i, t := range d.tables[1:] {
		if len(t.path) < len(tablePath) && slices.Equal(t.path, tablePath[:len(t.path)]) {
			if best < 0 || len(t.path) >= len(d.tables[best+1].path) {
				best = i
			}
		}
	}
	if best >= 0 {
		return insertAt(src, bodyEnd(src, d.tables[best+1]), "\n"+block)
	}
	return insertAt(src, len(src), "\n"+block)
}

// tableAt returns the table whose section contains pos.
func (d *document) tableAt(pos int) table {
	t := d.tables[0]
	for _, next := range d.tables[1:] {
		if next.bodyStart > pos {
			break
		}
		t = next
	}
	return t
}

// bodyEnd returns the position just after the last non-blank line of t.
func bodyEnd(src string, t table) int {
	body := src[t.bodyStart:t.end]
	last := strings.LastIndexFunc(body, func(r rune) bool { return r != ' ' && r != '\t' && r != '\n' && r != '\r' })
	if last < 0 {
		return t.bodyStart
	}
	return lineEnd(src, t.bodyStart+last)
}

func insertAt(src string, at int, text string) string {
	if at > 0 && src[at-1] != '\n' {
		text = "\n" + text
	}
	return src[:at] + text + src[at:]
}

// scanDocument finds every table header and key/value pair in src. It
// understands enough TOML to skip over any value, but decodes nothing.
func scanDocument(src string) (*document, error) {
	d := &document{tables: []table{{}}}
	var current []string
	i := 0
	for i < len(src) {
		i = skipBlank(src, i)
		if i >= len(src) {
			break
		}
		switch src[i] {
		case '\n', '\r':
			i++
		case '#':
			i = lineEnd(src, i)
		case '[':
			d.tables[len(d.tables)-1].end = lineStart(src, i)
			j := i + 1
			if strings.HasPrefix(src[i:], "[[") {
				j++
			}
			path, k, err := scanKey(src, j)
			if err != nil {
				return nil, err
			}
			k = skipBlank(src, k)
			if k >= len(src) || src[k] != ']' {
				return nil, scanError(src, k, "expected ']'")
			}
			current = path
			i = lineEnd(src, k)
			d.tables = append(d.tables, table{path: path, bodyStart: i})
		default:
			path, k, err := scanKey(src, i)
			if err != nil {
				return nil, err
			}
			k = skipBlank(src, k)
			if k >= len(src) || src[k] != '=' {
				return nil, scanError(src, k, "expected '='")
			}
			start := skipBlank(src, k+1)
			end, err := skipValue(src, start)
			if err != nil {
				return nil, err
			}
			d.keys = append(d.keys, keyValue{
				path: slices.Concat(current, path),
				span: span{start, end},
			})
			i = lineEnd(src, end)
		}
	}
	d.tables[len(d.tables)-1].end = len(src)
	return d, nil
}

func scanError(src string, pos int, msg string) error {
	return errors.Parse(errors.ErrCodeManifestParse, src, pos, "%s", msg)
}

// scanKey reads a dotted key of bare or quoted parts.
func scanKey(src string, i int) ([]string, int, error) {
	var path []string
	for {
		i = skipBlank(src, i)
		if i >= len(src) {
			return nil, i, scanError(src, i, "expected key")
		}
		switch c := src[i]; {
		case c == '"' || c == '\'':
			end, err := skipString(src, i)
			if err != nil {
				return nil, i, err
			}
			part, err := decodeString(src[i:end])
			if err != nil {
				return nil, i, scanError(src, i, "invalid quoted key")
			}
			path = append(path, part)
			i = end
		case isBareKeyChar(c):
			start := i
			for i < len(src) && isBareKeyChar(src[i]) {
				i++
			}
			path = append(path, src[start:i])
		default:
			return nil, i, scanError(src, i, "expected key")
		}
		i = skipBlank(src, i)
		if i >= len(src) || src[i] != '.' {
			return path, i, nil
		}
		i++
	}
}

// skipValue returns the end of the value starting at i.
func skipValue(src string, i int) (int, error) {
	if i >= len(src) {
		return i, scanError(src, i, "expected value")
	}
	switch src[i] {
	case '"', '\'':
		return skipString(src, i)
	case '[':
		i++
		for {
			i = skipSpaceAndComments(src, i)
			if i >= len(src) {
				return i, scanError(src, i, "unterminated array")
			}
			if src[i] == ']' {
				return i + 1, nil
			}
			end, err := skipValue(src, i)
			if err != nil {
				return i, err
			}
			i = skipSpaceAndComments(src, end)
			if i < len(src) && src[i] == ',' {
				i++
			}
		}
	case '{':
		i++
		for {
			i = skipBlank(src, i)
			if i >= len(src) {
				return i, scanError(src, i, "unterminated inline table")
			}
			if src[i] == '}' {
				return i + 1, nil
			}
			_, k, err := scanKey(src, i)
			if err != nil {
				return i, err
			}
			k = skipBlank(src, k)
			if k >= len(src) || src[k] != '=' {
				return k, scanError(src, k, "expected '='")
			}
			end, err := skipValue(src, skipBlank(src, k+1))
			if err != nil {
				return i, err
			}
			i = skipBlank(src, end)
			if i < len(src) && src[i] == ',' {
				i++
			}
		}
	}
	start := i
	for i < len(src) && !strings.ContainsRune(",]}\n\r#", rune(src[i])) {
		i++
	}
	end := start + len(strings.TrimRight(src[start:i], " \t"))
	if end == start {
		return i, scanError(src, i, "expected value")
	}
	return end, nil
}

// skipString returns the end of the string literal starting at i,
// including multi-line forms.
func skipString(src string, i int) (int, error) {
	q := src[i]
	if strings.HasPrefix(src[i:], strings.Repeat(string(q), 3)) {
		delim := strings.Repeat(string(q), 3)
		j := i + 3
		for {
			k := strings.Index(src[j:], delim)
			if k < 0 {
				return i, scanError(src, i, "unterminated string")
			}
			j += k
			if q == '"' && escaped(src, j) {
				j++
				continue
			}
			end := j + 3
			// Up to two extra quotes may close a multi-line string.
			for n := 0; n < 2 && end < len(src) && src[end] == q; n++ {
				end++
			}
			return end, nil
		}
	}
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\n':
			return i, scanError(src, i, "unterminated string")
		case '\\':
			if q == '"' {
				j++
			}
		case q:
			return j + 1, nil
		}
	}
	return i, scanError(src, i, "unterminated string")
}

func escaped(src string, j int) bool {
	n := 0
	for k := j - 1; k >= 0 && src[k] == '\\'; k-- {
		n++
	}
	return n%2 == 1
}

func skipBlank(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return i
}

func skipSpaceAndComments(src string, i int) int {
	for i < len(src) {
		switch src[i] {
		case ' ', '\t', '\n', '\r':
			i++
		case '#':
			i = lineEnd(src, i)
		default:
			return i
		}
	}
	return i
}

// lineEnd returns the index after the newline ending the line containing i.
func lineEnd(src string, i int) int {
	if k := strings.IndexByte(src[i:], '\n'); k >= 0 {
		return i + k + 1
	}
	return len(src)
}

func lineStart(src string, i int) int {
	return strings.LastIndexByte(src[:i], '\n') + 1
}

func isBareKeyChar(c byte) bool {
	return c == '_' || c == '-' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// decodeString decodes one TOML string literal.
func decodeString(lit string) (string, error) {
	var v struct{ V string }
	if _, err := toml.Decode("V = "+lit, &v); err != nil {
		return "", err
	}
	return v.V, nil
}

type arrayItem struct {
	span        // literal text in the document
	next int    // end of the item including its trailing comma
	name string // normalized requirement name, if the item parses
}

// parseArray locates the string items of the array value at key. Positions
// are offsets into src.
func parseArray(src string, key keyValue) ([]arrayItem, error) {
	text := src[key.start:key.end]
	if !strings.HasPrefix(text, "[") {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "%s is not an array", strings.Join(key.path, "."))
	}
	var items []arrayItem
	i := 1
	for {
		i = skipSpaceAndComments(text, i)
		if i >= len(text) || text[i] == ']' {
			return items, nil
		}
		end, err := skipValue(text, i)
		if err != nil {
			return nil, err
		}
		raw := text[i:end]
		value, err := decodeString(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s: non-string item %s", strings.Join(key.path, "."), raw)
		}
		item := arrayItem{span: span{key.start + i, key.start + end}}
		item.next = item.end
		if r, err := requirement.Parse(value); err == nil {
			item.name = r.Name
		}
		i = skipSpaceAndComments(text, end)
		if i < len(text) && text[i] == ',' {
			i++
			item.next = key.start + i
		}
		items = append(items, item)
	}
}

// appendItem adds entry after the last item of the array at key. A
// single-line array stays on one line; a multi-line array gets a new line
// indented like the last item. The trailing comma style of the last item
// carries over.
func appendItem(src string, key keyValue, items []arrayItem, entry string) string {
	closing := key.end - 1
	multiline := strings.Contains(src[key.start:key.end], "\n")

	if len(items) == 0 {
		if !multiline {
			return src[:key.start] + "[" + entry + "]" + src[key.end:]
		}
		at := lineStart(src, closing)
		return src[:at] + "    " + entry + ",\n" + src[at:]
	}

	last := items[len(items)-1]
	comma := last.next > last.end
	if !multiline {
		if comma {
			return src[:last.next] + " " + entry + "," + src[last.next:]
		}
		return src[:last.end] + ", " + entry + src[last.end:]
	}

	indent := src[lineStart(src, last.start):last.start]
	if strings.TrimSpace(indent) != "" {
		indent = "    "
	}
	if !strings.Contains(src[last.next:closing], "\n") {
		// The closing bracket shares the last item's line.
		if comma {
			return src[:last.next] + "\n" + indent + entry + "," + src[last.next:]
		}
		return src[:last.end] + ",\n" + indent + entry + src[last.end:]
	}
	at := lineEnd(src, last.next)
	if comma {
		return src[:at] + indent + entry + ",\n" + src[at:]
	}
	return src[:last.end] + "," + src[last.end:at] + indent + entry + "\n" + src[at:]
}

// removeItem cuts items[i] out of the array at key.
func removeItem(src string, key keyValue, items []arrayItem, i int) string {
	it := items[i]
	closing := key.end - 1

	// An item alone on its line goes with the line and its comment.
	ls, le := lineStart(src, it.start), lineEnd(src, it.next)
	if le <= closing {
		rest := strings.TrimSpace(src[it.next:le])
		if strings.TrimSpace(src[ls:it.start]) == "" && (rest == "" || rest[0] == '#') {
			return src[:ls] + src[le:]
		}
	}

	switch {
	case i+1 < len(items) && !strings.Contains(src[it.end:items[i+1].start], "\n"):
		return src[:it.start] + src[items[i+1].start:]
	case i > 0:
		return src[:items[i-1].end] + src[it.next:]
	default:
		return src[:it.start] + src[skipBlank(src, it.next):]
	}
}

func renderKey(path []string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		bare := p != ""
		for j := 0; j < len(p); j++ {
			if !isBareKeyChar(p[j]) {
				bare = false
				break
			}
		}
		if bare {
			parts[i] = p
		} else {
			parts[i] = quoteString(p)
		}
	}
	return strings.Join(parts, ".")
}

// quoteString returns s as a TOML basic string.
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
