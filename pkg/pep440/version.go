package pep440

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// Pre-release kinds in ascending order.
const (
	Alpha = "a"
	Beta  = "b"
	RC    = "rc"
)

// Version is a parsed version number. The zero value is "0".
//
// Versions are immutable once parsed; the slice fields must not be modified.
type Version struct {
	Epoch   int
	Release []int

	PreKind string // "", Alpha, Beta or RC
	PreNum  int

	HasPost bool
	Post    int

	HasDev bool
	Dev    int

	Local []string // lowercase segments, numeric ones in canonical form

	raw string
}

// Parse parses a version string.
//
// Parsing is case-insensitive and ignores surrounding whitespace. An optional
// leading "v" is accepted. Alternate spellings of pre-release, post-release
// and dev markers are normalized, so "1.0-ALPHA.1" and "1.0a1" are equal.
func Parse(text string) (Version, error) {
	p := &versionParser{in: text, s: strings.ToLower(text)}
	return p.parse()
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

type versionParser struct {
	in string // original input, for errors and ===
	s  string // lowercased input
	i  int
}

func (p *versionParser) fail(format string, args ...any) error {
	return errors.Parse(errors.ErrCodeInvalidVersion, p.in, p.i, format, args...)
}

func (p *versionParser) parse() (Version, error) {
	v := Version{raw: strings.TrimSpace(p.in)}

	p.skipSpace()
	if p.i == len(p.s) {
		return Version{}, p.fail("empty version")
	}
	if p.peek() == 'v' {
		p.i++
	}

	n, ok := p.number()
	if !ok {
		return Version{}, p.fail("expected release number")
	}
	if p.peek() == '!' {
		p.i++
		v.Epoch = n
		if n, ok = p.number(); !ok {
			return Version{}, p.fail("expected release number after epoch")
		}
	}
	v.Release = append(v.Release, n)
	for p.peek() == '.' && p.digitAt(p.i+1) {
		p.i++
		n, _ = p.number()
		v.Release = append(v.Release, n)
	}

	if kind, num, ok := p.preRelease(); ok {
		v.PreKind, v.PreNum = kind, num
	}
	if num, ok := p.postRelease(); ok {
		v.HasPost, v.Post = true, num
	}
	if num, ok := p.devRelease(); ok {
		v.HasDev, v.Dev = true, num
	}

	if p.peek() == '+' {
		p.i++
		local, err := p.local()
		if err != nil {
			return Version{}, err
		}
		v.Local = local
	}

	p.skipSpace()
	if p.i != len(p.s) {
		return Version{}, p.fail("unexpected trailing characters")
	}
	return v, nil
}

var (
	preAliases = []struct{ word, kind string }{
		{"preview", RC},
		{"alpha", Alpha},
		{"beta", Beta},
		{"pre", RC},
		{"rc", RC},
		{"a", Alpha},
		{"b", Beta},
		{"c", RC},
	}
	postAliases = []string{"post", "rev", "r"}
)

func (p *versionParser) preRelease() (string, int, bool) {
	start := p.i
	p.separator()
	for _, a := range preAliases {
		if strings.HasPrefix(p.s[p.i:], a.word) {
			p.i += len(a.word)
			return a.kind, p.implicitNumber(), true
		}
	}
	p.i = start
	return "", 0, false
}

func (p *versionParser) postRelease() (int, bool) {
	start := p.i
	if p.peek() == '-' && p.digitAt(p.i+1) {
		p.i++
		n, _ := p.number()
		return n, true
	}
	p.separator()
	for _, word := range postAliases {
		if strings.HasPrefix(p.s[p.i:], word) {
			p.i += len(word)
			return p.implicitNumber(), true
		}
	}
	p.i = start
	return 0, false
}

func (p *versionParser) devRelease() (int, bool) {
	start := p.i
	p.separator()
	if strings.HasPrefix(p.s[p.i:], "dev") {
		p.i += len("dev")
		return p.implicitNumber(), true
	}
	p.i = start
	return 0, false
}

func (p *versionParser) local() ([]string, error) {
	var segs []string
	for {
		start := p.i
		for p.i < len(p.s) && isAlnum(p.s[p.i]) {
			p.i++
		}
		if p.i == start {
			return nil, p.fail("expected local version segment")
		}
		seg := p.s[start:p.i]
		if isNumeric(seg) {
			seg = strings.TrimLeft(seg, "0")
			if seg == "" {
				seg = "0"
			}
		}
		segs = append(segs, seg)
		if !isSeparator(p.peek()) {
			return segs, nil
		}
		p.i++
	}
}

// implicitNumber reads an optional separator and number; a missing number is 0.
func (p *versionParser) implicitNumber() int {
	start := p.i
	p.separator()
	if n, ok := p.number(); ok {
		return n
	}
	p.i = start
	return 0
}

func (p *versionParser) number() (int, bool) {
	start := p.i
	for p.i < len(p.s) && isDigit(p.s[p.i]) {
		p.i++
	}
	if p.i == start {
		return 0, false
	}
	n, err := strconv.Atoi(p.s[start:p.i])
	if err != nil {
		p.i = start
		return 0, false
	}
	return n, true
}

func (p *versionParser) separator() {
	if isSeparator(p.peek()) {
		p.i++
	}
}

func (p *versionParser) skipSpace() {
	for p.i < len(p.s) && (p.s[p.i] == ' ' || p.s[p.i] == '\t') {
		p.i++
	}
}

func (p *versionParser) peek() byte {
	if p.i < len(p.s) {
		return p.s[p.i]
	}
	return 0
}

func (p *versionParser) digitAt(i int) bool {
	return i < len(p.s) && isDigit(p.s[i])
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isSeparator(c byte) bool { return c == '.' || c == '-' || c == '_' }
func isAlnum(c byte) bool     { return isDigit(c) || (c >= 'a' && c <= 'z') }

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}

// String returns the normalized form of v.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch != 0 {
		b.WriteString(strconv.Itoa(v.Epoch))
		b.WriteByte('!')
	}
	b.WriteString(v.releaseString())
	if v.PreKind != "" {
		b.WriteString(v.PreKind)
		b.WriteString(strconv.Itoa(v.PreNum))
	}
	if v.HasPost {
		b.WriteString(".post")
		b.WriteString(strconv.Itoa(v.Post))
	}
	if v.HasDev {
		b.WriteString(".dev")
		b.WriteString(strconv.Itoa(v.Dev))
	}
	if len(v.Local) > 0 {
		b.WriteByte('+')
		b.WriteString(strings.Join(v.Local, "."))
	}
	return b.String()
}

func (v Version) releaseString() string {
	if len(v.Release) == 0 {
		return "0"
	}
	parts := make([]string, len(v.Release))
	for i, n := range v.Release {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Raw returns the text v was parsed from, without surrounding whitespace.
// For versions built in code it falls back to String.
func (v Version) Raw() string {
	if v.raw == "" {
		return v.String()
	}
	return v.raw
}

// IsPrerelease reports whether v is a pre-release or dev release.
func (v Version) IsPrerelease() bool { return v.PreKind != "" || v.HasDev }

// IsPostRelease reports whether v is a post-release.
func (v Version) IsPostRelease() bool { return v.HasPost }

// IsLocal reports whether v carries a local version label.
func (v Version) IsLocal() bool { return len(v.Local) > 0 }

// Public returns v without its local label.
func (v Version) Public() Version {
	v.Local = nil
	v.raw = ""
	return v
}

// BaseVersion returns the epoch and release segment of v only.
func (v Version) BaseVersion() Version {
	return Version{Epoch: v.Epoch, Release: v.Release}
}

// Major returns the first release segment.
func (v Version) Major() int { return v.segment(0) }

// Minor returns the second release segment, or 0.
func (v Version) Minor() int { return v.segment(1) }

// Micro returns the third release segment, or 0.
func (v Version) Micro() int { return v.segment(2) }

func (v Version) segment(i int) int {
	if i < len(v.Release) {
		return v.Release[i]
	}
	return 0
}

// Equal reports whether v and o compare equal.
func (v Version) Equal(o Version) bool { return Compare(v, o) == 0 }

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool { return Compare(v, o) < 0 }

// Compare returns -1, 0 or +1 depending on whether a sorts before, equal to,
// or after b.
//
// Ordering: epoch, then release (shorter release zero padded), then
// dev-only < pre-release < final < post-release, with dev releases of each
// phase sorting first, then local labels (no label sorts first).
func Compare(a, b Version) int {
	if c := cmp.Compare(a.Epoch, b.Epoch); c != 0 {
		return c
	}
	if c := compareRelease(a.Release, b.Release); c != 0 {
		return c
	}
	if c := comparePre(a, b); c != 0 {
		return c
	}
	if c := compareOptional(a.HasPost, a.Post, b.HasPost, b.Post, -1); c != 0 {
		return c
	}
	if c := compareOptional(a.HasDev, a.Dev, b.HasDev, b.Dev, +1); c != 0 {
		return c
	}
	return compareLocal(a.Local, b.Local)
}

func compareRelease(a, b []int) int {
	n := max(len(a), len(b))
	for i := range n {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if c := cmp.Compare(x, y); c != 0 {
			return c
		}
	}
	return 0
}

// preKey maps the pre-release phase to a sortable pair. A dev release with
// no pre or post segment sorts before every pre-release of the same release.
func preKey(v Version) (int, int) {
	switch {
	case v.PreKind == "" && !v.HasPost && v.HasDev:
		return -1, 0
	case v.PreKind == Alpha:
		return 0, v.PreNum
	case v.PreKind == Beta:
		return 1, v.PreNum
	case v.PreKind == RC:
		return 2, v.PreNum
	default:
		return 3, 0
	}
}

func comparePre(a, b Version) int {
	ak, an := preKey(a)
	bk, bn := preKey(b)
	if c := cmp.Compare(ak, bk); c != 0 {
		return c
	}
	return cmp.Compare(an, bn)
}

// compareOptional compares optional numbers; missing sorts by absent
// (-1 = before any value, +1 = after any value).
func compareOptional(aok bool, a int, bok bool, b int, absent int) int {
	switch {
	case aok && bok:
		return cmp.Compare(a, b)
	case aok:
		return -absent
	case bok:
		return absent
	}
	return 0
}

// compareLocal orders local labels segment by segment. Numeric segments
// sort before alphanumeric ones and compare as numbers.
func compareLocal(a, b []string) int {
	for i := range min(len(a), len(b)) {
		x, y := a[i], b[i]
		xn, yn := isNumeric(x), isNumeric(y)
		switch {
		case xn && yn:
			if c := cmp.Compare(len(x), len(y)); c != 0 {
				return c
			}
			if c := strings.Compare(x, y); c != 0 {
				return c
			}
		case xn:
			return -1
		case yn:
			return 1
		default:
			if c := strings.Compare(x, y); c != 0 {
				return c
			}
		}
	}
	return cmp.Compare(len(a), len(b))
}

// SortDescending sorts versions newest first. Equal versions keep their
// relative order.
func SortDescending(vs []Version) {
	slices.SortStableFunc(vs, func(a, b Version) int { return Compare(b, a) })
}

// SortAscending sorts versions oldest first.
func SortAscending(vs []Version) {
	slices.SortStableFunc(vs, Compare)
}
