package rtti

import (
	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
)

type eventKind uint8

const (
	evCompound eventKind = iota
	evCompoundEnd
	evArray
	evArrayEnd
	evProperty
	evSkip
	evSkipEnd
	evData
	evTypeRef
	evName
	evPointer
	evResource
	evBuffer
)

type event struct {
	obj  Object
	typ  Type
	data []byte
	sp   StreamProperty
	buf  buffer.Buffer
	ref  ResourceRef
	name Name
	n    uint32
	kind eventKind
}

// eventStream records OpcodeWriter calls and replays them as an
// OpcodeReader, with skip blocks always present.
type eventStream struct {
	events []event
	pos    int
}

func (s *eventStream) add(e event) { s.events = append(s.events, e) }

func (s *eventStream) BeginCompound(n uint32) { s.add(event{kind: evCompound, n: n}) }
func (s *eventStream) EndCompound()           { s.add(event{kind: evCompoundEnd}) }
func (s *eventStream) BeginArray(n uint32)    { s.add(event{kind: evArray, n: n}) }
func (s *eventStream) EndArray()              { s.add(event{kind: evArrayEnd}) }
func (s *eventStream) BeginSkipBlock()        { s.add(event{kind: evSkip}) }
func (s *eventStream) EndSkipBlock()          { s.add(event{kind: evSkipEnd}) }
func (s *eventStream) WriteTypeRef(t Type)    { s.add(event{kind: evTypeRef, typ: t}) }
func (s *eventStream) WriteName(n Name)       { s.add(event{kind: evName, name: n}) }
func (s *eventStream) WritePointer(o Object)  { s.add(event{kind: evPointer, obj: o}) }

func (s *eventStream) BeginProperty(p *Property) {
	s.add(event{kind: evProperty, sp: StreamProperty{
		Property:  p,
		Type:      p.Type(),
		ClassName: p.Parent().Name(),
		Name:      p.Name(),
		TypeName:  p.Type().Name(),
	}})
}

func (s *eventStream) WriteData(data []byte) {
	s.add(event{kind: evData, data: append([]byte(nil), data...)})
}

func (s *eventStream) WriteVarData(data []byte) { s.WriteData(data) }

func (s *eventStream) WriteResourceRef(ref ResourceRef) {
	s.add(event{kind: evResource, ref: ref})
}

func (s *eventStream) WriteBuffer(b buffer.Buffer, async bool) {
	s.add(event{kind: evBuffer, buf: b})
}

func (s *eventStream) next(kind eventKind) (event, error) {
	if s.pos >= len(s.events) {
		return event{}, errors.BufferOverrun(errors.PhaseRead, s.pos, 1, len(s.events))
	}
	e := s.events[s.pos]
	if e.kind != kind {
		return event{}, errors.OpcodeMismatch(errors.PhaseRead, "other", "expected")
	}
	s.pos++
	return e, nil
}

func (s *eventStream) EnterCompound() (uint32, error) {
	e, err := s.next(evCompound)
	return e.n, err
}

func (s *eventStream) LeaveCompound() error {
	_, err := s.next(evCompoundEnd)
	return err
}

func (s *eventStream) EnterArray() (uint32, error) {
	e, err := s.next(evArray)
	return e.n, err
}

func (s *eventStream) LeaveArray() error {
	_, err := s.next(evArrayEnd)
	return err
}

func (s *eventStream) ReadProperty() (StreamProperty, error) {
	e, err := s.next(evProperty)
	return e.sp, err
}

func (s *eventStream) EnterSkipBlock() error {
	_, err := s.next(evSkip)
	return err
}

func (s *eventStream) LeaveSkipBlock() error {
	_, err := s.next(evSkipEnd)
	return err
}

func (s *eventStream) DiscardSkipBlock() error {
	if _, err := s.next(evSkip); err != nil {
		return err
	}
	for depth := 1; depth > 0; s.pos++ {
		if s.pos >= len(s.events) {
			return errors.SkipMismatch(errors.PhaseRead, "end of stream inside skip block")
		}
		switch s.events[s.pos].kind {
		case evSkip:
			depth++
		case evSkipEnd:
			depth--
		}
	}
	return nil
}

func (s *eventStream) ReadData(size int) ([]byte, error) {
	e, err := s.next(evData)
	return e.data, err
}

func (s *eventStream) ReadTypeRef() (Type, error) {
	e, err := s.next(evTypeRef)
	return e.typ, err
}

func (s *eventStream) ReadName() (Name, error) {
	e, err := s.next(evName)
	return e.name, err
}

func (s *eventStream) ReadPointer() (Object, error) {
	e, err := s.next(evPointer)
	return e.obj, err
}

func (s *eventStream) ReadResourceRef() (ResourceRef, error) {
	e, err := s.next(evResource)
	return e.ref, err
}

func (s *eventStream) ReadBuffer(async bool) (buffer.Buffer, error) {
	e, err := s.next(evBuffer)
	return e.buf, err
}

// renameProperty rewrites the recorded name of every property event whose
// name is from, detaching it from the registered property.
func (s *eventStream) renameProperty(from, to string, known Type) {
	for i := range s.events {
		e := &s.events[i]
		if e.kind == evProperty && e.sp.Name == from {
			e.sp.Property = nil
			e.sp.Name = to
			e.sp.Type = known
			if known == nil {
				e.sp.TypeName = "Unknown"
			}
		}
	}
}
