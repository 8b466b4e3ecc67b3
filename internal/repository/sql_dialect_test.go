package repository

import (
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"
)

func TestBuildKeywordLikeConditionSQLite(t *testing.T) {
	condition, argCount := buildKeywordLikeConditionByDialect("sqlite", []string{"name", "notify_url"})
	if argCount != 2 {
		t.Fatalf("arg count want 2 got %d", argCount)
	}
	if condition != "name LIKE ? OR notify_url LIKE ?" {
		t.Fatalf("unexpected condition: %s", condition)
	}
}

func TestBuildKeywordLikeConditionPostgres(t *testing.T) {
	condition, argCount := buildKeywordLikeConditionByDialect("postgres", []string{"name", "", "notify_url"})
	if argCount != 2 {
		t.Fatalf("arg count want 2 got %d", argCount)
	}
	if !strings.Contains(condition, "name ILIKE ?") {
		t.Fatalf("postgres should use ILIKE, got %s", condition)
	}
}

func TestRepeatLikeArgs(t *testing.T) {
	args := repeatLikeArgs("%test%", 3)
	if len(args) != 3 {
		t.Fatalf("args len want 3 got %d", len(args))
	}
	for idx, arg := range args {
		if arg != "%test%" {
			t.Fatalf("args[%d] want %%test%% got %v", idx, arg)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("gorm duplicated key should be a unique violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: payments.app_id, payments.merchant_order_no")) {
		t.Fatalf("sqlite message should be a unique violation")
	}
	if !IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "idx_payments_app_order"`)) {
		t.Fatalf("postgres message should be a unique violation")
	}
	if IsUniqueViolation(errors.New("connection refused")) {
		t.Fatalf("unrelated error should not be a unique violation")
	}
	if IsUniqueViolation(nil) {
		t.Fatalf("nil should not be a unique violation")
	}
}
