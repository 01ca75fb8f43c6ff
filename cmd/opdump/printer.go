package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/wippyai/typestream/opcode"
	"github.com/wippyai/typestream/resfile"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/serialize"
)

type printer struct {
	w io.Writer

	title   lipgloss.Style
	tag     lipgloss.Style
	note    lipgloss.Style
	errText lipgloss.Style
	dim     lipgloss.Style
}

func newPrinter(w io.Writer, color bool) *printer {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &printer{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		tag:     r.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		note:    r.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		errText: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

func (p *printer) line(s string) {
	fmt.Fprintln(p.w, s)
}

func (p *printer) error(err error) {
	p.line(p.errText.Render("error: " + err.Error()))
}

func (p *printer) summary(path string, f *resfile.File) {
	p.line(p.title.Render(path))
	protected := ""
	if f.Flags&resfile.FlagProtected != 0 {
		protected = " protected"
	}
	t := f.Tables
	p.line(fmt.Sprintf("version %d%s, %d exports, %d imports, %d buffers, %d properties, %d names, %d types",
		f.Version, protected, len(t.Exports), len(t.Imports), len(t.Buffers), len(t.Properties), len(t.Names), len(f.TypeNames)))
}

func (p *printer) tables(f *resfile.File) {
	t := f.Tables
	section := func(name string, n int) {
		if n > 0 {
			p.line("")
			p.line(p.title.Render(fmt.Sprintf("%s (%d)", name, n)))
		}
	}

	section("names", len(t.Names))
	for i, n := range t.Names {
		p.line(fmt.Sprintf("  #%-4d %016x %s", i+1, n.Hash, str(f, n.String)))
	}
	section("types", len(f.TypeNames))
	for i, name := range f.TypeNames {
		p.line(fmt.Sprintf("  #%-4d %s", i+1, name))
	}
	section("properties", len(t.Properties))
	for i := range t.Properties {
		p.line(fmt.Sprintf("  #%-4d %016x %s", i+1, t.Properties[i].Hash, propertyName(f, i)))
	}
	section("imports", len(t.Imports))
	for i, im := range t.Imports {
		p.line(fmt.Sprintf("  #%-4d %s %s %s", i+1, im.ID, str(f, im.ClassName), str(f, im.Path)))
	}
	section("exports", len(t.Exports))
	for i, e := range t.Exports {
		p.line(fmt.Sprintf("  #%-4d %-24s offset=%d size=%d crc=%016x", i+1, f.ExportClass(i), e.Offset, e.Size, e.CRC))
	}
	section("buffers", len(t.Buffers))
	for i, b := range t.Buffers {
		p.line(fmt.Sprintf("  %-5d size=%d stored=%d %s crc=%016x offset=%d",
			i, b.Meta.Size, b.Meta.CompressedSize, b.Meta.Compression, b.Meta.CRC, b.Offset))
	}
}

func (p *printer) exportHeader(i int, f *resfile.File) {
	p.line("")
	p.line(p.title.Render(fmt.Sprintf("export #%d %s", i+1, f.ExportClass(i))))
}

// listing prints ins indented by nesting depth. With f set, reference
// records are annotated with the table entries they point at.
func (p *printer) listing(ins []serialize.Instruction, f *resfile.File) {
	depth := 0
	for _, in := range ins {
		switch in.Tag {
		case opcode.CompoundEnd, opcode.ArrayEnd:
			depth = max(depth-1, 0)
		}
		text := in.String()
		if i := strings.IndexByte(text, ' '); i > 0 {
			text = p.dim.Render(text[:i]) + " " + strings.Repeat("  ", depth) + p.tag.Render(text[i+1:])
		}
		if f != nil {
			if note := annotate(in, f); note != "" {
				text += "  " + p.note.Render(note)
			}
		}
		p.line(text)
		switch in.Tag {
		case opcode.Compound, opcode.Array:
			depth++
		}
	}
}

func (p *printer) objects(objs []rtti.Object) {
	for i, o := range objs {
		p.line("")
		if o == nil {
			p.line(p.dim.Render(fmt.Sprintf("export #%d: class not registered", i+1)))
			continue
		}
		c := rtti.ClassOf(o)
		p.line(p.title.Render(fmt.Sprintf("export #%d %s", i+1, c.Name())))
		p.line(rtti.Print(c, rtti.ObjectData(o)))
	}
}

// annotate names the table entry a reference record points at. Stream
// indices are 1-based; zero is the null reference.
func annotate(in serialize.Instruction, f *resfile.File) string {
	t := f.Tables
	idx := int(in.Arg) - 1
	switch in.Tag {
	case opcode.Property:
		if idx >= 0 && idx < len(t.Properties) {
			return propertyName(f, idx)
		}
	case opcode.DataTypeRef:
		if idx >= 0 && idx < len(f.TypeNames) {
			return f.TypeNames[idx]
		}
	case opcode.DataName:
		if idx >= 0 && idx < len(t.Names) {
			return fmt.Sprintf("%q", str(f, t.Names[idx].String))
		}
	case opcode.DataObjectPointer:
		if in.Arg == 0 {
			return "null"
		}
		if idx < len(t.Exports) {
			return fmt.Sprintf("-> export #%d %s", idx+1, f.ExportClass(idx))
		}
	case opcode.DataResourceRef:
		if in.Arg == 0 {
			return "null"
		}
		if idx < len(t.Imports) {
			im := t.Imports[idx]
			return fmt.Sprintf("-> %s %s", str(f, im.ClassName), im.ID)
		}
	default:
		return ""
	}
	return "out of range"
}

func propertyName(f *resfile.File, i int) string {
	pe := f.Tables.Properties[i]
	return fmt.Sprintf("%s.%s: %s", str(f, pe.ClassName), str(f, pe.Name), str(f, pe.TypeName))
}

func str(f *resfile.File, off uint32) string {
	s, err := f.Tables.String(off)
	if err != nil {
		return "?"
	}
	return s
}
