package ui

import (
	"maps"
	"sync"

	"depth-recorder-go/internal/device"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
)

// Sidebar holds the device option pickers. Its selection is copied onto a
// fresh device configuration each time the device is opened; edits made
// while the device is open apply on the next open.
type Sidebar struct {
	mu        sync.Mutex
	selection map[string]string

	form *widget.Form
}

// NewSidebar builds one picker per key, preset from selection. Keys with
// known choices get a drop-down, others a text entry.
func NewSidebar(keys []string, selection map[string]string) *Sidebar {
	s := &Sidebar{selection: maps.Clone(selection)}
	if s.selection == nil {
		s.selection = make(map[string]string)
	}

	s.form = widget.NewForm()
	for _, key := range keys {
		s.form.Append(key, s.picker(key))
	}
	return s
}

func (s *Sidebar) picker(key string) fyne.CanvasObject {
	value := s.selection[key]
	if choices := device.Choices(key); choices != nil {
		sel := widget.NewSelect(choices, func(v string) { s.Set(key, v) })
		sel.Selected = value
		return sel
	}
	entry := widget.NewEntry()
	entry.SetText(value)
	entry.OnChanged = func(v string) { s.Set(key, v) }
	return entry
}

// Set records a picker change.
func (s *Sidebar) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection[key] = value
}

// Selection returns a copy of the current selection.
func (s *Sidebar) Selection() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.selection)
}

// Object returns the sidebar widget.
func (s *Sidebar) Object() fyne.CanvasObject {
	return s.form
}
