package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"closed pool", ErrConnectionClosed, true},
		{"connect error", fmt.Errorf("save: %w", &pgconn.ConnectError{}), true},
		{"constraint", &pgconn.PgError{Code: "23514"}, false},
		{"other", errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := shared.WrapError("postgres", "SaveGroup", shared.ErrPersistence, "failed", classify(tt.err))
			assert.True(t, shared.IsPersistence(err))
			assert.Equal(t, tt.retryable, shared.IsRetryable(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
