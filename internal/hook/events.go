package hook

// Mode determines how an event dispatches to its handlers.
type Mode int

const (
	// ModeObserver fans the payload out to every handler; return values
	// are ignored.
	ModeObserver Mode = iota
	// ModeTransform threads the value through handlers in priority
	// order; each handler sees the previous handler's output.
	ModeTransform
)

func (m Mode) String() string {
	switch m {
	case ModeObserver:
		return "observer"
	case ModeTransform:
		return "transform"
	default:
		return "unknown"
	}
}

// Story events.
const (
	EventStoryStart = "on_story_start"
	EventStoryEnd   = "on_story_end"
	EventStoryReset = "on_story_reset"
)

// Passage events.
const (
	EventPassageEnter  = "on_passage_enter"
	EventPassageExit   = "on_passage_exit"
	EventPassageRender = "on_passage_render"
)

// Choice events.
const (
	EventChoicePresent  = "on_choice_present"
	EventChoiceEvaluate = "on_choice_evaluate"
	EventChoiceSelect   = "on_choice_select"
)

// State events.
const (
	EventVariableSet = "on_variable_set"
	EventVariableGet = "on_variable_get"
	EventStateChange = "on_state_change"
)

// Persistence events.
const (
	EventSave     = "on_save"
	EventLoad     = "on_load"
	EventSaveList = "on_save_list"
)

// EventError fires when another handler or a plugin call fails.
const EventError = "on_error"

// eventModes is the static dispatch table. Events absent from it
// dispatch as observers.
var eventModes = map[string]Mode{
	EventStoryStart: ModeObserver,
	EventStoryEnd:   ModeObserver,
	EventStoryReset: ModeObserver,

	EventPassageEnter:  ModeObserver,
	EventPassageExit:   ModeObserver,
	EventPassageRender: ModeTransform,

	EventChoicePresent:  ModeTransform,
	EventChoiceEvaluate: ModeTransform,
	EventChoiceSelect:   ModeObserver,

	EventVariableSet: ModeTransform,
	EventVariableGet: ModeTransform,
	EventStateChange: ModeObserver,

	EventSave:     ModeTransform,
	EventLoad:     ModeTransform,
	EventSaveList: ModeTransform,

	EventError: ModeObserver,
}

// ModeOf returns the dispatch mode for an event name. Unrecognized
// events are observers.
func ModeOf(event string) Mode {
	if m, ok := eventModes[event]; ok {
		return m
	}
	return ModeObserver
}

// Known reports whether the event is part of the built-in catalog.
func Known(event string) bool {
	_, ok := eventModes[event]
	return ok
}

// Events returns the built-in event catalog. Order is unspecified.
func Events() []string {
	out := make([]string, 0, len(eventModes))
	for name := range eventModes {
		out = append(out, name)
	}
	return out
}
