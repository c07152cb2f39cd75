package uploadui

// EventKind identifies an input event delivered to the controller.
type EventKind int

const (
	EventClick EventKind = iota
	EventDragOver
	EventDragLeave
	EventDrop
	EventChange
	EventSubmit
)

func (k EventKind) String() string {
	switch k {
	case EventClick:
		return "click"
	case EventDragOver:
		return "dragover"
	case EventDragLeave:
		return "dragleave"
	case EventDrop:
		return "drop"
	case EventChange:
		return "change"
	case EventSubmit:
		return "submit"
	default:
		return "unknown"
	}
}

// Event is a synthetic input event. Files is read for drop and change.
type Event struct {
	Kind  EventKind
	Files []File
}

// Dispatch routes an event to its handler and reports whether the host
// should cancel the default action.
func (c *Controller) Dispatch(ev Event) Outcome {
	switch ev.Kind {
	case EventClick:
		c.Click()
	case EventDragOver:
		return c.DragOver()
	case EventDragLeave:
		c.DragLeave()
	case EventDrop:
		return c.Drop(ev.Files)
	case EventChange:
		c.Change(ev.Files)
	case EventSubmit:
		return c.Submit()
	}
	return Proceed
}
