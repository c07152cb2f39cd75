//go:build js && wasm

package uploadui

import (
	"fmt"
	"syscall/js"

	"go.uber.org/zap"
)

// Element ids the scanner page must provide.
const (
	IDDropZone       = "dropZone"
	IDFileInput      = "fileInput"
	IDPreviewImage   = "preview-img"
	IDHUDText        = "hudText"
	IDLoadingOverlay = "loadingOverlay"
	IDUploadForm     = "uploadForm"
)

type jsFile struct{ v js.Value }

func (f jsFile) Name() string { return f.v.Get("name").String() }

type jsElement struct{ v js.Value }

func (e jsElement) AddClass(name string)    { e.v.Get("classList").Call("add", name) }
func (e jsElement) RemoveClass(name string) { e.v.Get("classList").Call("remove", name) }
func (e jsElement) SetDisplay(value string) { e.v.Get("style").Set("display", value) }
func (e jsElement) SetSource(url string)    { e.v.Set("src", url) }

type jsFileInput struct {
	v      js.Value
	window js.Value
}

func (in jsFileInput) OpenPicker() { in.v.Call("click") }

func (in jsFileInput) Files() []File { return fileList(in.v.Get("files")) }

func (in jsFileInput) SetFiles(files []File) {
	dt := in.window.Get("DataTransfer").New()
	for _, f := range files {
		if jf, ok := f.(jsFile); ok {
			dt.Get("items").Call("add", jf.v)
		}
	}
	in.v.Set("files", dt.Get("files"))
}

type jsWindow struct{ v js.Value }

func (w jsWindow) Alert(message string) { w.v.Call("alert", message) }

func (w jsWindow) Create(file File) (url string, err error) {
	jf, ok := file.(jsFile)
	if !ok {
		return "", fmt.Errorf("uploadui: unsupported file handle %T", file)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("uploadui: createObjectURL: %v", r)
		}
	}()
	return w.v.Get("URL").Call("createObjectURL", jf.v).String(), nil
}

func (w jsWindow) Revoke(url string) { w.v.Get("URL").Call("revokeObjectURL", url) }

func fileList(list js.Value) []File {
	if list.IsNull() || list.IsUndefined() {
		return nil
	}
	n := list.Length()
	files := make([]File, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, jsFile{v: list.Index(i)})
	}
	return files
}

// Binding ties a Controller to live DOM listeners.
type Binding struct {
	Controller *Controller

	release []func()
}

// Release removes every listener and closes the controller.
func (b *Binding) Release() {
	for _, fn := range b.release {
		fn()
	}
	b.release = nil
	b.Controller.Close()
}

// Bind looks up the scanner page's elements in window.document, builds a
// Controller and registers its event listeners. A missing element is
// reported as a *MissingCollaboratorError naming its id.
func Bind(window js.Value, logger *zap.Logger) (*Binding, error) {
	doc := window.Get("document")
	if doc.IsNull() || doc.IsUndefined() {
		return nil, &MissingCollaboratorError{Name: "document"}
	}
	lookup := func(id string) (js.Value, error) {
		v := doc.Call("getElementById", id)
		if v.IsNull() || v.IsUndefined() {
			return js.Value{}, &MissingCollaboratorError{Name: id}
		}
		return v, nil
	}

	ids := []string{IDDropZone, IDFileInput, IDPreviewImage, IDHUDText, IDLoadingOverlay, IDUploadForm}
	found := make(map[string]js.Value, len(ids))
	for _, id := range ids {
		v, err := lookup(id)
		if err != nil {
			return nil, err
		}
		found[id] = v
	}

	win := jsWindow{v: window}
	input := jsFileInput{v: found[IDFileInput], window: window}
	ctrl, err := New(Elements{
		DropZone:       jsElement{v: found[IDDropZone]},
		FileInput:      input,
		PreviewImage:   jsElement{v: found[IDPreviewImage]},
		Placeholder:    jsElement{v: found[IDHUDText]},
		LoadingOverlay: jsElement{v: found[IDLoadingOverlay]},
		Alerter:        win,
		PreviewURLs:    win,
	}, WithLogger(logger))
	if err != nil {
		return nil, err
	}

	b := &Binding{Controller: ctrl}
	listen := func(target js.Value, event string, handle func(ev js.Value) Outcome) {
		fn := js.FuncOf(func(this js.Value, args []js.Value) any {
			if len(args) == 0 {
				return nil
			}
			if handle(args[0]) == Prevent {
				args[0].Call("preventDefault")
			}
			return nil
		})
		target.Call("addEventListener", event, fn)
		b.release = append(b.release, func() {
			target.Call("removeEventListener", event, fn)
			fn.Release()
		})
	}

	dropZone := found[IDDropZone]
	listen(dropZone, "click", func(js.Value) Outcome {
		return ctrl.Dispatch(Event{Kind: EventClick})
	})
	listen(dropZone, "dragover", func(js.Value) Outcome {
		return ctrl.Dispatch(Event{Kind: EventDragOver})
	})
	listen(dropZone, "dragleave", func(js.Value) Outcome {
		return ctrl.Dispatch(Event{Kind: EventDragLeave})
	})
	listen(dropZone, "drop", func(ev js.Value) Outcome {
		var files []File
		if dt := ev.Get("dataTransfer"); !dt.IsNull() && !dt.IsUndefined() {
			files = fileList(dt.Get("files"))
		}
		return ctrl.Dispatch(Event{Kind: EventDrop, Files: files})
	})
	listen(found[IDFileInput], "change", func(js.Value) Outcome {
		return ctrl.Dispatch(Event{Kind: EventChange, Files: input.Files()})
	})
	listen(found[IDUploadForm], "submit", func(js.Value) Outcome {
		return ctrl.Dispatch(Event{Kind: EventSubmit})
	})
	listen(window, "beforeunload", func(js.Value) Outcome {
		ctrl.Close()
		return Proceed
	})

	return b, nil
}
