// Package editor holds the state of one open form page while it is being
// edited: the working field list, the style, the baseline of the last
// successful fetch or save, and the single in-flight save slot.
package editor

import (
	"errors"
	"fmt"
	"sync"

	"form-builder-backend/pkg/diff"
	"form-builder-backend/pkg/fields"
	"form-builder-backend/pkg/navigation"
)

var (
	ErrSaveInFlight  = errors.New("a save is already in progress")
	ErrNothingToSave = errors.New("no changes to save")
	ErrNoSaveStarted = errors.New("no save in progress")
	ErrFieldNotFound = errors.New("field not found")
)

// Snapshot is an authoritative server view of one page. It replaces the
// baseline wholesale.
type Snapshot struct {
	FormID  uint           `json:"form_id"`
	PageID  uint           `json:"page_id"`
	Title   string         `json:"title"`
	Version int            `json:"version"`
	Style   fields.Style   `json:"style"`
	Fields  []fields.Field `json:"fields"`
	Order   []uint         `json:"page_order"`
}

// SaveRequest is what the editor hands to the transport when a save starts.
type SaveRequest struct {
	FormID uint
	PageID uint
	Title  string
	Style  fields.Style
	Fields []fields.Field
}

type Session struct {
	mu sync.Mutex

	formID  uint
	pageID  uint
	version int
	order   []uint

	title  string
	style  fields.Style
	fields []fields.Field

	baseline      diff.State
	baselineTitle string

	saving bool
}

// NewSession opens a page from snapshot.
func NewSession(snapshot Snapshot) *Session {
	s := &Session{}
	s.load(snapshot)
	return s
}

func (s *Session) load(snapshot Snapshot) {
	s.formID = snapshot.FormID
	s.pageID = snapshot.PageID
	s.version = snapshot.Version
	s.order = append([]uint(nil), snapshot.Order...)
	s.title = snapshot.Title
	s.style = snapshot.Style
	s.baselineTitle = snapshot.Title
	s.baseline = diff.State{Fields: fields.Clone(snapshot.Fields), Style: snapshot.Style}
	s.fields, _ = navigation.Reconcile(snapshot.Fields, s.expectedButton())
}

// Load replaces both the working state and the baseline after a fetch.
func (s *Session) Load(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(snapshot)
}

func (s *Session) expectedButton() fields.Type {
	if s.formID == 0 && len(s.order) == 0 {
		// unsaved draft: a single page
		return fields.TypeSubmit
	}
	return navigation.ExpectedButton(s.pageID, s.order)
}

// Fields returns a copy of the working field list.
func (s *Session) Fields() []fields.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fields.Clone(s.fields)
}

func (s *Session) Style() fields.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

func (s *Session) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Dirty reports whether anything observable diverges from the baseline.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty()
}

func (s *Session) dirty() bool {
	if s.title != s.baselineTitle {
		return true
	}
	return diff.IsDirty(diff.State{Fields: s.fields, Style: s.style}, s.baseline)
}

// CanSave reports whether the Save action should be enabled.
func (s *Session) CanSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.saving && s.dirty()
}

// replace swaps in a new field list after reconciling its navigation field.
func (s *Session) replace(next []fields.Field) {
	s.fields, _ = navigation.Reconcile(next, s.expectedButton())
}

// contentEnd is the insertion point just before the trailing navigation field.
func (s *Session) contentEnd() int {
	if _, ok := navigation.TrailingButton(s.fields); ok {
		return len(s.fields) - 1
	}
	return len(s.fields)
}

// Add inserts a new field of type t at index (clamped before the navigation
// field) and returns it.
func (s *Session) Add(t fields.Type, index int) (fields.Field, error) {
	if t.IsNavigation() {
		return fields.Field{}, fmt.Errorf("%s fields are managed automatically", t)
	}
	f, err := fields.New(t)
	if err != nil {
		return fields.Field{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f = f.WithPageID(s.pageID)
	if index < 0 || index > s.contentEnd() {
		index = s.contentEnd()
	}
	s.replace(fields.Insert(s.fields, index, f))
	return f, nil
}

// Update replaces the field with id by the result of edit.
func (s *Session) Update(id string, edit func(fields.Field) (fields.Field, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := fields.IndexOf(s.fields, id)
	if i < 0 {
		return ErrFieldNotFound
	}
	updated, err := edit(s.fields[i])
	if err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	if updated.ID() != id {
		return fmt.Errorf("edit must keep field id %q", id)
	}
	next, err := fields.Replace(s.fields, i, updated)
	if err != nil {
		return err
	}
	s.replace(next)
	return nil
}

// Delete removes the field with id. Removing the last content field also
// drops the then orphaned navigation field.
func (s *Session) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := fields.IndexOf(s.fields, id)
	if i < 0 {
		return ErrFieldNotFound
	}
	if s.fields[i].Type().IsNavigation() {
		return fmt.Errorf("%s fields are managed automatically", s.fields[i].Type())
	}
	next, err := fields.Remove(s.fields, i)
	if err != nil {
		return err
	}
	s.replace(next)
	return nil
}

// Move relocates a content field; the navigation field stays last.
func (s *Session) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.contentEnd()
	if from < 0 || from >= end || to < 0 || to >= end {
		return fmt.Errorf("move %d -> %d out of range", from, to)
	}
	next, err := fields.Move(s.fields, from, to)
	if err != nil {
		return err
	}
	s.replace(next)
	return nil
}

func (s *Session) SetStyle(style fields.Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = style.Normalize()
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

// ApplyOrder takes a page order (optimistic or the server verdict) and
// reconciles the open page against it.
func (s *Session) ApplyOrder(order []uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append([]uint(nil), order...)
	var changed bool
	s.fields, changed = navigation.Reconcile(s.fields, s.expectedButton())
	return changed
}

// BeginSave claims the save slot and returns what should be sent.
func (s *Session) BeginSave() (SaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saving {
		return SaveRequest{}, ErrSaveInFlight
	}
	if !s.dirty() {
		return SaveRequest{}, ErrNothingToSave
	}
	s.saving = true
	return SaveRequest{
		FormID: s.formID,
		PageID: s.pageID,
		Title:  s.title,
		Style:  s.style,
		Fields: fields.Clone(s.fields),
	}, nil
}

// CompleteSave releases the save slot and makes snapshot the new baseline.
func (s *Session) CompleteSave(snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saving {
		return ErrNoSaveStarted
	}
	s.saving = false
	s.load(snapshot)
	return nil
}

// FailSave releases the save slot and keeps the working state for a retry.
func (s *Session) FailSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
}
