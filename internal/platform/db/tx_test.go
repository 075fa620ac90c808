package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx for empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	tx := TxFromContext(ctx)
	if tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	slotErr := &pgconn.PgError{Code: "23505", ConstraintName: "appointment_scheduled_slot_uq"}
	fkErr := &pgconn.PgError{Code: "23503", ConstraintName: "appointment_patient_id_fkey"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"match any", slotErr, "", true},
		{"match named", slotErr, "appointment_scheduled_slot_uq", true},
		{"wrapped", fmt.Errorf("insert: %w", slotErr), "appointment_scheduled_slot_uq", true},
		{"other constraint", slotErr, "patient_national_id_key", false},
		{"foreign key", fkErr, "", false},
		{"plain error", errors.New("boom"), "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
			t.Errorf("%s: IsUniqueViolation() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("expected plain error not to match")
	}
}
