package rtti

import "strings"

// TextNode is the text serialization sink/source (an XML element or
// similar): a value plus named children.
type TextNode interface {
	Name() string
	Value() string
	SetValue(v string)
	Child(name string) (TextNode, bool)
	Children(name string) []TextNode
	AddChild(name string) TextNode
}

// MemoryNode is an in-memory TextNode tree.
type MemoryNode struct {
	name     string
	value    string
	children []*MemoryNode
}

// NewTextNode creates an empty root node.
func NewTextNode(name string) *MemoryNode {
	return &MemoryNode{name: name}
}

func (n *MemoryNode) Name() string      { return n.name }
func (n *MemoryNode) Value() string     { return n.value }
func (n *MemoryNode) SetValue(v string) { n.value = v }

func (n *MemoryNode) Child(name string) (TextNode, bool) {
	for _, c := range n.children {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

func (n *MemoryNode) Children(name string) []TextNode {
	var out []TextNode
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (n *MemoryNode) AddChild(name string) TextNode {
	c := &MemoryNode{name: name}
	n.children = append(n.children, c)
	return c
}

// splitList strips the enclosing lb/rb pair from s and splits the
// contents at top-level commas. Nested brackets, parentheses and quoted
// strings are kept intact.
func splitList(s string, lb, rb byte) ([]string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != lb || s[len(s)-1] != rb {
		return nil, false
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, true
	}

	var parts []string
	depth, start := 0, 0
	inQuote, escaped := false, false
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '[', '(':
			depth++
		case ']', ')':
			depth--
			if depth < 0 {
				return nil, false
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 || inQuote {
		return nil, false
	}
	return append(parts, strings.TrimSpace(inner[start:])), true
}
