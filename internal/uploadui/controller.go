// Package uploadui implements the scanner page's upload interaction as an
// explicit state machine. The DOM is reached only through the collaborator
// interfaces in Elements, so the machine can be driven directly in tests.
package uploadui

import (
	"go.uber.org/zap"
)

const (
	// DragOverClass is toggled on the drop zone while a drag hovers it.
	DragOverClass = "dragover"

	DisplayBlock = "block"
	DisplayNone  = "none"
	DisplayFlex  = "flex"

	// EmptySubmissionMessage is alerted when the form is submitted without a file.
	EmptySubmissionMessage = "Please upload an image first."
)

// State is the controller's interaction state.
type State int

const (
	Idle State = iota
	DragActive
	FileSelected
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DragActive:
		return "drag_active"
	case FileSelected:
		return "file_selected"
	case Submitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Outcome tells the host whether to cancel the event's default action.
type Outcome int

const (
	Proceed Outcome = iota
	Prevent
)

// Controller translates input events into preview, drag feedback,
// submission gating and the loading overlay. It is not safe for concurrent
// use; the host delivers events one at a time.
type Controller struct {
	el     Elements
	logger *zap.Logger

	state      State
	previewURL string
	closed     bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New validates the collaborators and returns a controller in the Idle state.
func New(el Elements, opts ...Option) (*Controller, error) {
	if err := el.validate(); err != nil {
		return nil, err
	}
	c := &Controller{el: el, logger: zap.NewNop(), state: Idle}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("uploadui")
	return c, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// PreviewURL returns the live preview URL, or "" when none is held.
func (c *Controller) PreviewURL() string {
	return c.previewURL
}

// Click opens the file picker.
func (c *Controller) Click() {
	c.el.FileInput.OpenPicker()
}

// DragOver marks the drop zone active. The browser default (opening the
// file) must always be cancelled.
func (c *Controller) DragOver() Outcome {
	c.el.DropZone.AddClass(DragOverClass)
	c.transition(DragActive)
	return Prevent
}

// DragLeave clears the active drag state.
func (c *Controller) DragLeave() {
	c.el.DropZone.RemoveClass(DragOverClass)
	c.transition(c.restingState())
}

// Drop clears the drag state and selects the first dropped file. Further
// files are ignored and an empty drop changes nothing.
func (c *Controller) Drop(files []File) Outcome {
	c.el.DropZone.RemoveClass(DragOverClass)
	if len(files) == 0 {
		c.transition(c.restingState())
		return Prevent
	}
	if len(files) > 1 {
		c.logger.Debug("ignoring extra dropped files", zap.Int("dropped", len(files)))
	}
	c.el.FileInput.SetFiles(files[:1])
	c.handleFile(files[0])
	c.transition(c.restingState())
	return Prevent
}

// Change handles a selection made through the file picker.
func (c *Controller) Change(files []File) {
	if len(files) == 0 {
		return
	}
	c.handleFile(files[0])
	c.transition(c.restingState())
}

// Submit gates the form submission. Without a selected file it alerts and
// prevents the submit; otherwise it shows the loading overlay and lets the
// browser post the form.
func (c *Controller) Submit() Outcome {
	if !c.hasFile() {
		c.el.Alerter.Alert(EmptySubmissionMessage)
		return Prevent
	}
	c.el.LoadingOverlay.SetDisplay(DisplayFlex)
	c.transition(Submitting)
	return Proceed
}

// Close releases the live preview URL. Safe to call more than once.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.revokePreview()
}

func (c *Controller) handleFile(file File) {
	if file == nil {
		return
	}
	url, err := c.el.PreviewURLs.Create(file)
	if err != nil {
		c.logger.Debug("preview unavailable", zap.String("file", file.Name()), zap.Error(err))
		return
	}
	c.revokePreview()
	c.previewURL = url
	c.el.PreviewImage.SetSource(url)
	c.el.PreviewImage.SetDisplay(DisplayBlock)
	c.el.Placeholder.SetDisplay(DisplayNone)
}

func (c *Controller) revokePreview() {
	if c.previewURL == "" {
		return
	}
	c.el.PreviewURLs.Revoke(c.previewURL)
	c.previewURL = ""
}

func (c *Controller) hasFile() bool {
	files := c.el.FileInput.Files()
	return len(files) > 0 && files[0] != nil
}

func (c *Controller) restingState() State {
	if c.hasFile() {
		return FileSelected
	}
	return Idle
}

func (c *Controller) transition(next State) {
	if next == c.state {
		return
	}
	c.logger.Debug("state transition", zap.Stringer("from", c.state), zap.Stringer("to", next))
	c.state = next
}
