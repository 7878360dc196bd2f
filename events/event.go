// Package events decodes the line-delimited structured output of a test run.
//
// Two dialects are understood:
//   - the canonical tagged record, {"type":"suite"|"test","event":...,"name":...,"stdout":...}
//   - the raw `go test -json` / test2json record, {"Action":...,"Test":...,"Output":...}
//
// Both decode into Event. A Collector folds test2json output records into the
// captured output of the test that produced them, so consumers only ever see
// lifecycle events with Stdout attached to the terminal one.
package events

// Kind discriminates suite-level from test-level records
type Kind string

const (
	KindSuite Kind = "suite"
	KindTest  Kind = "test"
)

// Phase is the lifecycle phase named by a record
type Phase string

const (
	PhaseStarted Phase = "started"
	PhaseOK      Phase = "ok"
	PhaseFailed  Phase = "failed"
	PhaseIgnored Phase = "ignored"
	PhaseOutput  Phase = "output"
)

// Go test2json (TestEvent) action constants
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go;l=34-60
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// Event is one decoded record of the stream
type Event struct {
	Kind  Kind   `json:"type"`
	Phase Phase  `json:"event"`
	Name  string `json:"name,omitempty"`
	// Stdout is everything the test printed. Only set on terminal phases.
	Stdout *string `json:"stdout,omitempty"`

	// Output is the text fragment carried by a test2json output record
	Output  string `json:"-"`
	Package string `json:"-"`
}

// IsTerminal reports whether the phase ends a test: "ok" or "failed"
func (p Phase) IsTerminal() bool {
	return p == PhaseOK || p == PhaseFailed
}

// IsTerminal reports whether e is a test event in a terminal phase
func (e Event) IsTerminal() bool {
	return e.Kind == KindTest && e.Phase.IsTerminal()
}

// CapturedOutput returns Stdout, or "" when absent
func (e Event) CapturedOutput() string {
	if e.Stdout == nil {
		return ""
	}
	return *e.Stdout
}

// FindTerminal returns the first test event named name whose phase is terminal.
// Stream order decides when a name finishes more than once.
func FindTerminal(evs []Event, name string) (Event, bool) {
	return find(evs, name, Phase.IsTerminal)
}

// FindIgnored returns the first ignored (skipped) test event named name
func FindIgnored(evs []Event, name string) (Event, bool) {
	return find(evs, name, func(p Phase) bool { return p == PhaseIgnored })
}

func find(evs []Event, name string, match func(Phase) bool) (Event, bool) {
	for _, ev := range evs {
		if ev.Kind == KindTest && ev.Name == name && match(ev.Phase) {
			return ev, true
		}
	}
	return Event{}, false
}

func stringPtr(s string) *string {
	return &s
}
