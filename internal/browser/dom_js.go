//go:build js && wasm

package browser

import (
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/dgellow/authbridge/internal/bridge"
	"github.com/dgellow/authbridge/internal/gate"
	"github.com/dgellow/authbridge/internal/protocol"
)

var (
	_ gate.Window          = (*Window)(nil)
	_ bridge.Document      = (*Window)(nil)
	_ bridge.MessageSource = (*Window)(nil)
)

// Window wraps the page's global window and document. Callbacks handed to
// the DOM stay registered for the page's lifetime.
type Window struct {
	win   js.Value
	doc   js.Value
	funcs []js.Func
}

// NewWindow binds to the global window.
func NewWindow() *Window {
	win := js.Global()
	return &Window{win: win, doc: win.Get("document")}
}

// IsEmbedded implements gate.Window.
func (w *Window) IsEmbedded() bool {
	parent := w.win.Get("parent")
	if parent.IsUndefined() || parent.IsNull() {
		return false
	}
	return !parent.Equal(w.win.Get("self"))
}

// Referrer implements gate.Window.
func (w *Window) Referrer() string {
	return w.doc.Get("referrer").String()
}

// PostToParent implements gate.Window. The browser drops the message when
// the parent has navigated away from targetOrigin.
func (w *Window) PostToParent(msg protocol.Message, targetOrigin string) (err error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	defer recoverJSError(&err)

	data := js.Global().Get("JSON").Call("parse", string(raw))
	w.win.Get("parent").Call("postMessage", data, targetOrigin)
	return nil
}

// Loading implements bridge.Document.
func (w *Window) Loading() bool {
	return w.doc.Get("readyState").String() == "loading"
}

// OnContentLoaded implements bridge.Document.
func (w *Window) OnContentLoaded(fn func()) {
	var cb js.Func
	cb = js.FuncOf(func(this js.Value, args []js.Value) any {
		fn()
		cb.Release()
		return nil
	})
	w.doc.Call("addEventListener", "DOMContentLoaded", cb, map[string]any{"once": true})
}

// HasGateFrame implements bridge.Document.
func (w *Window) HasGateFrame() bool {
	el := w.doc.Call("querySelector", `iframe[`+bridge.FrameAttribute+`="true"]`)
	return !el.IsNull() && !el.IsUndefined()
}

// AppendGateFrame implements bridge.Document.
func (w *Window) AppendGateFrame(src, title string) (err error) {
	defer recoverJSError(&err)

	frame := w.doc.Call("createElement", "iframe")
	frame.Call("setAttribute", bridge.FrameAttribute, "true")
	frame.Call("setAttribute", "title", title)
	frame.Call("setAttribute", "aria-hidden", "true")
	frame.Call("setAttribute", "tabindex", "-1")
	frame.Get("style").Set("display", "none")
	frame.Set("src", src)

	body := w.doc.Get("body")
	if body.IsNull() || body.IsUndefined() {
		return fmt.Errorf("document has no body")
	}
	body.Call("appendChild", frame)
	return nil
}

// AddMessageListener implements bridge.MessageSource. Payloads that are not
// JSON-serializable arrive as null.
func (w *Window) AddMessageListener(fn func(bridge.Event)) {
	cb := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}
		ev := args[0]
		fn(bridge.Event{
			Origin: ev.Get("origin").String(),
			Data:   stringify(ev.Get("data")),
		})
		return nil
	})
	w.funcs = append(w.funcs, cb)
	w.win.Call("addEventListener", "message", cb)
}

// Dataset returns the data-* attributes of the element with id, keyed the
// way element.dataset keys them.
func (w *Window) Dataset(id string) map[string]string {
	out := map[string]string{}
	el := w.doc.Call("getElementById", id)
	if el.IsNull() || el.IsUndefined() {
		return out
	}
	dataset := el.Get("dataset")
	keys := js.Global().Get("Object").Call("keys", dataset)
	for i := 0; i < keys.Length(); i++ {
		key := keys.Index(i).String()
		out[key] = dataset.Get(key).String()
	}
	return out
}

// StatusLine returns a function that sets the text of the element with id.
// Missing elements are ignored.
func (w *Window) StatusLine(id string) func(string) {
	return func(text string) {
		el := w.doc.Call("getElementById", id)
		if el.IsNull() || el.IsUndefined() {
			return
		}
		el.Set("textContent", text)
	}
}

func stringify(v js.Value) (raw json.RawMessage) {
	defer func() {
		if recover() != nil {
			raw = json.RawMessage("null")
		}
	}()
	if v.IsUndefined() {
		return json.RawMessage("null")
	}
	s := js.Global().Get("JSON").Call("stringify", v)
	if s.Type() != js.TypeString {
		return json.RawMessage("null")
	}
	return json.RawMessage(s.String())
}

func recoverJSError(err *error) {
	if r := recover(); r != nil {
		if jsErr, ok := r.(js.Error); ok {
			*err = jsErr
			return
		}
		*err = fmt.Errorf("%v", r)
	}
}
