package server

import (
	"fmt"

	"github.com/danmuck/panelctl/internal/protocol"
)

// UpdateFunc runs on the event loop right after a SET committed. previous is
// the widget value before the change.
type UpdateFunc func(req *Request, widgetID uint16, previous protocol.WidgetValue)

// Page is one registered screen. Description never changes after
// registration; widget values change but their count and types do not.
type Page struct {
	ID          protocol.PageID
	Description []byte
	Widgets     []protocol.WidgetValue
	Update      UpdateFunc
}

// Registry is the append-only page list. It implements protocol.Pages.
type Registry struct {
	pages   []*Page
	initial protocol.PageID
	frozen  bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a page and returns its id. The description is copied; the
// widget slice is kept and becomes the page's live state.
func (r *Registry) Register(description []byte, widgets []protocol.WidgetValue, update UpdateFunc) (protocol.PageID, error) {
	if r.frozen {
		return protocol.NoPageID, ErrRegistryFrozen
	}
	if len(r.pages) >= int(protocol.NoPageID) {
		return protocol.NoPageID, ErrRegistryFull
	}
	id := protocol.PageID(len(r.pages))
	r.pages = append(r.pages, &Page{
		ID:          id,
		Description: append([]byte{}, description...),
		Widgets:     widgets,
		Update:      update,
	})
	return id, nil
}

func (r *Registry) SetInitial(id protocol.PageID) error {
	if int(id) >= len(r.pages) {
		return fmt.Errorf("%w: %d", ErrPageOutOfRange, id)
	}
	r.initial = id
	return nil
}

func (r *Registry) Initial() protocol.PageID {
	return r.initial
}

func (r *Registry) Page(id protocol.PageID) (*Page, bool) {
	if int(id) >= len(r.pages) {
		return nil, false
	}
	return r.pages[id], true
}

func (r *Registry) PageCount() int {
	return len(r.pages)
}

func (r *Registry) Widgets(id protocol.PageID) []protocol.WidgetValue {
	p, ok := r.Page(id)
	if !ok {
		return nil
	}
	return p.Widgets
}

func (r *Registry) Freeze() {
	r.frozen = true
}
