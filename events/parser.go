package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNoDiscriminator = errors.New("record has neither a type nor an Action field")
	ErrUnknownKind     = errors.New("unknown record type")
	ErrMissingField    = errors.New("missing required field")
)

// ParseError describes a line that is not a valid structured record
type ParseError struct {
	Line int // 1-based, 0 when parsed outside a stream
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed event on line %d (%q): %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("malformed event %q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// record is the union of both dialects. encoding/json ignores any other field.
type record struct {
	Type   *string `json:"type"`
	Event  *string `json:"event"`
	Name   *string `json:"name"`
	Stdout *string `json:"stdout"`

	Action  string `json:"Action"`
	Test    string `json:"Test"`
	Package string `json:"Package"`
	Output  string `json:"Output"`
}

// ParseLine decodes a single line into an Event
func ParseLine(line []byte) (Event, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Event{}, &ParseError{Text: string(line), Err: err}
	}

	var (
		ev  Event
		err error
	)
	switch {
	case rec.Type != nil:
		ev, err = fromTagged(rec)
	case rec.Action != "":
		ev = fromTest2JSON(rec)
	default:
		err = ErrNoDiscriminator
	}
	if err != nil {
		return Event{}, &ParseError{Text: string(line), Err: err}
	}
	return ev, nil
}

func fromTagged(rec record) (Event, error) {
	kind := Kind(*rec.Type)
	if kind != KindSuite && kind != KindTest {
		return Event{}, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	if rec.Event == nil {
		return Event{}, fmt.Errorf("%w: event", ErrMissingField)
	}
	ev := Event{Kind: kind, Phase: Phase(*rec.Event)}
	if kind == KindSuite {
		return ev, nil
	}
	if rec.Name == nil {
		return Event{}, fmt.Errorf("%w: name", ErrMissingField)
	}
	ev.Name = *rec.Name
	ev.Stdout = rec.Stdout
	return ev, nil
}

func fromTest2JSON(rec record) Event {
	ev := Event{
		Kind:    KindTest,
		Phase:   phaseForAction(rec.Action),
		Name:    rec.Test,
		Output:  rec.Output,
		Package: rec.Package,
	}
	if rec.Test == "" {
		ev.Kind = KindSuite
	}
	return ev
}

func phaseForAction(action string) Phase {
	switch action {
	case ActionStart, ActionRun:
		return PhaseStarted
	case ActionPass:
		return PhaseOK
	case ActionFail:
		return PhaseFailed
	case ActionSkip:
		return PhaseIgnored
	case ActionOutput:
		return PhaseOutput
	default:
		return Phase(action)
	}
}
