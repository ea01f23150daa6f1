// Package recovery decides how parsing reacts to malformed input.
package recovery

type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	// ActionFail aborts the parse with the reported error.
	ActionFail Action = iota
	// ActionSkip drops the damaged object and continues.
	ActionSkip
	// ActionFix keeps the best-effort repair and continues silently.
	ActionFix
	// ActionWarn keeps the best-effort repair and continues; the strategy
	// has recorded the problem.
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	}
	return "unknown"
}

// Continues reports whether parsing goes on after the action.
func (a Action) Continues() bool { return a != ActionFail }

type Context interface{ Done() <-chan struct{} }
