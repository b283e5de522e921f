package service

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

type sqlStateError string

func (e sqlStateError) Error() string    { return "sql error " + string(e) }
func (e sqlStateError) SQLState() string { return string(e) }

func TestIsValidationError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newValidationError("field %d needs a label", 2))
	if !IsValidationError(err) {
		t.Fatal("expected wrapped validation error to be detected")
	}
	if IsValidationError(ErrDuplicateTitle) || IsValidationError(nil) {
		t.Fatal("unexpected validation error match")
	}
	if newValidationError("  ").Error() != "invalid input" {
		t.Fatal("expected a default message")
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	if !isDuplicateKeyError(gorm.ErrDuplicatedKey) {
		t.Fatal("expected gorm duplicate key error to match")
	}
	if !isDuplicateKeyError(fmt.Errorf("insert: %w", sqlStateError("23505"))) {
		t.Fatal("expected unique violation SQLSTATE to match")
	}
	if isDuplicateKeyError(sqlStateError("23503")) || isDuplicateKeyError(errors.New("boom")) {
		t.Fatal("unexpected duplicate key match")
	}
}
