package uploadui

import (
	"errors"
	"fmt"
)

// File is an opaque handle to a user-selected file. The controller never
// reads or copies its content.
type File interface {
	Name() string
}

// DropZone is the element that receives clicks and drag events.
type DropZone interface {
	AddClass(name string)
	RemoveClass(name string)
}

// FileInput is the hidden file input that owns the current selection.
type FileInput interface {
	OpenPicker()
	Files() []File
	SetFiles(files []File)
}

// Displayer toggles an element's inline display style.
type Displayer interface {
	SetDisplay(value string)
}

// PreviewImage shows the selected file.
type PreviewImage interface {
	Displayer
	SetSource(url string)
}

// Alerter surfaces a blocking user-facing message.
type Alerter interface {
	Alert(message string)
}

// PreviewURLs creates and releases temporary object URLs for files.
type PreviewURLs interface {
	Create(file File) (string, error)
	Revoke(url string)
}

// Elements are the collaborators the controller drives.
type Elements struct {
	DropZone       DropZone
	FileInput      FileInput
	PreviewImage   PreviewImage
	Placeholder    Displayer
	LoadingOverlay Displayer
	Alerter        Alerter
	PreviewURLs    PreviewURLs
}

// ErrMissingCollaborator is matched by every MissingCollaboratorError.
var ErrMissingCollaborator = errors.New("missing collaborator")

// MissingCollaboratorError names the element that was not provided.
type MissingCollaboratorError struct {
	Name string
}

func (e *MissingCollaboratorError) Error() string {
	return fmt.Sprintf("uploadui: missing collaborator %q", e.Name)
}

// Is reports whether target is ErrMissingCollaborator.
func (e *MissingCollaboratorError) Is(target error) bool {
	return target == ErrMissingCollaborator
}

func (e Elements) validate() error {
	checks := []struct {
		name    string
		present bool
	}{
		{"dropZone", e.DropZone != nil},
		{"fileInput", e.FileInput != nil},
		{"preview-img", e.PreviewImage != nil},
		{"hudText", e.Placeholder != nil},
		{"loadingOverlay", e.LoadingOverlay != nil},
		{"alert", e.Alerter != nil},
		{"previewURLs", e.PreviewURLs != nil},
	}
	for _, c := range checks {
		if !c.present {
			return &MissingCollaboratorError{Name: c.name}
		}
	}
	return nil
}
