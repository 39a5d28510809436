package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslate(t *testing.T) {
	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	overflow := &pgconn.PgError{Code: "22003", Message: "bigint out of range"}

	cases := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"not found", gorm.ErrRecordNotFound, ErrNotFound},
		{"duplicate", gorm.ErrDuplicatedKey, ErrDuplicate},
		{"deadlock", deadlock, ErrConflict},
		{"serialization", fmt.Errorf("update: %w", serialization), ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translate(tc.in)
			if tc.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tc.want)
		})
	}

	t.Run("conflict keeps the driver error", func(t *testing.T) {
		var pgErr *pgconn.PgError
		assert.True(t, errors.As(translate(deadlock), &pgErr))
		assert.Equal(t, "40P01", pgErr.Code)
	})

	t.Run("other driver errors pass through", func(t *testing.T) {
		got := translate(overflow)
		assert.NotErrorIs(t, got, ErrConflict)
		assert.Same(t, overflow, got)
	})
}

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, DefaultPageLimit},
		{3, 20, 3, 20},
		{-1, MaxPageLimit + 1, 1, DefaultPageLimit},
		{2, MaxPageLimit, 2, MaxPageLimit},
	}
	for _, tc := range cases {
		page, limit := NormalizePage(tc.page, tc.limit)
		assert.Equal(t, tc.wantPage, page)
		assert.Equal(t, tc.wantLimit, limit)
	}
}
