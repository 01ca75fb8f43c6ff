package path

import "strconv"

// Segment is one step of a data view path: a property name or an array index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return "." + s.Name
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ParsePropertyName consumes an optional leading '.', then characters up to
// the next '.' or '['. It fails when the name is empty or contains
// characters other than [A-Za-z0-9_].
func ParsePropertyName(p string) (name, rest string, ok bool) {
	i := 0
	if i < len(p) && p[i] == '.' {
		i++
	}
	start := i
	for i < len(p) && p[i] != '.' && p[i] != '[' {
		if !isIdentChar(p[i]) {
			return "", p, false
		}
		i++
	}
	if i == start {
		return "", p, false
	}
	return p[start:i], p[i:], true
}

// ParseArrayIndex requires a leading '[', then decimal digits and a closing
// ']'.
func ParseArrayIndex(p string) (index int, rest string, ok bool) {
	if len(p) == 0 || p[0] != '[' {
		return 0, p, false
	}
	i := 1
	n := 0
	for ; i < len(p) && p[i] != ']'; i++ {
		c := p[i]
		if c < '0' || c > '9' {
			return 0, p, false
		}
		if n > (maxIndex-int(c-'0'))/10 {
			return 0, p, false
		}
		n = n*10 + int(c-'0')
	}
	if i == 1 || i >= len(p) {
		return 0, p, false
	}
	return n, p[i+1:], true
}

const maxIndex = int(^uint32(0) >> 1)

// ExtractParentPath splits off the last segment. A trailing bracket group
// is the child when the path ends in ']'; otherwise the child is the text
// after the last '.', or the whole path when there is none.
func ExtractParentPath(p string) (parent, child string, ok bool) {
	if p == "" {
		return "", "", false
	}
	if p[len(p)-1] == ']' {
		for i := len(p) - 2; i >= 0; i-- {
			if p[i] == '[' {
				return p[:i], p[i:], true
			}
		}
		return "", "", false
	}
	for i := len(p) - 1; i >= 0; i-- {
		switch p[i] {
		case '.':
			if i == len(p)-1 {
				return "", "", false
			}
			return p[:i], p[i+1:], true
		case '[', ']':
			return p[:i+1], p[i+1:], true
		}
	}
	return "", p, true
}

// Next parses the first segment of p.
func Next(p string) (seg Segment, rest string, ok bool) {
	if p != "" && p[0] == '[' {
		idx, rest, ok := ParseArrayIndex(p)
		return Segment{Index: idx, IsIndex: true}, rest, ok
	}
	name, rest, ok := ParsePropertyName(p)
	return Segment{Name: name}, rest, ok
}

// Split parses a whole path into segments.
func Split(p string) ([]Segment, bool) {
	var segs []Segment
	for p != "" {
		seg, rest, ok := Next(p)
		if !ok {
			return nil, false
		}
		segs = append(segs, seg)
		p = rest
	}
	return segs, true
}
