package events

import (
	"encoding/json"
	"fmt"
	"io"
)

// Encoder writes events as canonical tagged records, one per line
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

// Encode writes ev. Output records have no canonical form and are rejected;
// run the stream through a Collector first.
func (e *Encoder) Encode(ev Event) error {
	if ev.Phase == PhaseOutput {
		return fmt.Errorf("output record for %q cannot be encoded, collect it first", ev.Name)
	}
	if ev.Kind == KindSuite {
		ev.Name = ""
		ev.Stdout = nil
	}
	if !ev.Phase.IsTerminal() {
		ev.Stdout = nil
	}
	return e.enc.Encode(ev)
}
