package editor

import (
	"errors"
	"testing"

	"form-builder-backend/pkg/fields"
	"form-builder-backend/pkg/navigation"
)

func loadedSession() *Session {
	name := fields.MustNew(fields.TypeShortAnswer).WithID("1").WithLabel("Name").WithPageID(10)
	next := fields.MustNew(fields.TypeNext).WithID("2").WithPageID(10)
	return NewSession(Snapshot{
		FormID:  1,
		PageID:  10,
		Title:   "Survey",
		Version: 3,
		Style:   fields.DefaultStyle(),
		Fields:  []fields.Field{name, next},
		Order:   []uint{10, 11},
	})
}

func TestFreshSessionIsClean(t *testing.T) {
	s := loadedSession()
	if s.Dirty() || s.CanSave() {
		t.Fatal("a freshly loaded session must not be dirty")
	}
	if _, err := s.BeginSave(); !errors.Is(err, ErrNothingToSave) {
		t.Fatalf("expected ErrNothingToSave, got %v", err)
	}
}

func TestAddKeepsNavigationLast(t *testing.T) {
	s := loadedSession()
	added, err := s.Add(fields.TypeEmail, 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list := s.Fields()
	if len(list) != 3 || list[1].ID() != added.ID() || list[2].Type() != fields.TypeNext {
		t.Fatalf("unexpected field order: %v", list)
	}
	if added.PageID() != 10 {
		t.Fatalf("expected new field on page 10, got %d", added.PageID())
	}
	if !s.Dirty() {
		t.Fatal("adding a field must make the session dirty")
	}
	if _, err := s.Add(fields.TypeSubmit, 0); err == nil {
		t.Fatal("navigation fields must not be added manually")
	}
}

func TestDeletingLastContentDropsNavigation(t *testing.T) {
	s := loadedSession()
	if err := s.Delete("1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(s.Fields()); n != 0 {
		t.Fatalf("expected orphaned navigation field to be dropped, got %d fields", n)
	}
	if err := s.Delete("missing"); !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("expected ErrFieldNotFound, got %v", err)
	}
}

func TestUpdateAndRevertRestoresClean(t *testing.T) {
	s := loadedSession()
	if err := s.Update("1", func(f fields.Field) (fields.Field, error) {
		return f.WithLabel("Full name"), nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Dirty() {
		t.Fatal("label change must be dirty")
	}
	if err := s.Update("1", func(f fields.Field) (fields.Field, error) {
		return f.WithLabel("Name"), nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Dirty() {
		t.Fatal("reverting the label must make the session clean again")
	}

	err := s.Update("1", func(f fields.Field) (fields.Field, error) { return f.WithID("other"), nil })
	if err == nil {
		t.Fatal("changing the id through Update must fail")
	}
}

func TestApplyOrderFlipsButton(t *testing.T) {
	s := loadedSession()
	if !s.ApplyOrder([]uint{11, 10}) {
		t.Fatal("expected reorder to change the open page")
	}
	button, ok := navigation.TrailingButton(s.Fields())
	if !ok || button.Type() != fields.TypeSubmit || button.ID() != "2" {
		t.Fatalf("expected Submit keeping id 2, got %+v", button)
	}
	if s.ApplyOrder([]uint{11, 10}) {
		t.Fatal("applying the same order twice must be a no-op")
	}
}

func TestSingleSaveInFlight(t *testing.T) {
	s := loadedSession()
	s.SetTitle("Survey 2024")

	req, err := s.BeginSave()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Title != "Survey 2024" || len(req.Fields) != 2 {
		t.Fatalf("unexpected save request: %+v", req)
	}
	if _, err := s.BeginSave(); !errors.Is(err, ErrSaveInFlight) {
		t.Fatalf("expected ErrSaveInFlight, got %v", err)
	}
	if s.CanSave() {
		t.Fatal("save must be disabled while in flight")
	}

	s.FailSave()
	if !s.CanSave() {
		t.Fatal("failed save must re-enable saving")
	}

	if _, err := s.BeginSave(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	persisted := Snapshot{
		FormID:  1,
		PageID:  10,
		Title:   "Survey 2024",
		Version: 4,
		Style:   req.Style,
		Fields:  req.Fields,
		Order:   []uint{10, 11},
	}
	if err := s.CompleteSave(persisted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Dirty() || s.Version() != 4 {
		t.Fatal("completed save must replace the baseline")
	}
	if err := s.CompleteSave(persisted); !errors.Is(err, ErrNoSaveStarted) {
		t.Fatalf("expected ErrNoSaveStarted, got %v", err)
	}
}

func TestDraftSessionGetsSubmit(t *testing.T) {
	s := NewSession(Snapshot{Style: fields.DefaultStyle()})
	if _, err := s.Add(fields.TypeLongAnswer, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	button, ok := navigation.TrailingButton(s.Fields())
	if !ok || button.Type() != fields.TypeSubmit {
		t.Fatal("draft form must end with Submit")
	}
}

func TestStyleChangeIsDirty(t *testing.T) {
	s := loadedSession()
	style := s.Style()
	style.ButtonColor = "#FF0000"
	s.SetStyle(style)
	if !s.Dirty() {
		t.Fatal("style change must be dirty")
	}
	if s.Style().ButtonColor != "#ff0000" {
		t.Fatalf("expected normalized color, got %q", s.Style().ButtonColor)
	}
}
