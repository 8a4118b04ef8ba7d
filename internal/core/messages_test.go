package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/csvlint/internal/csvw"
	"github.com/JonMunkholm/csvlint/internal/diagnostic"
)

func TestMapKind_EveryKindHasACode(t *testing.T) {
	seen := map[string]diagnostic.Kind{}
	for _, k := range diagnostic.Kinds() {
		msg := MapKind(k)
		assert.NotEqual(t, defaultMessage.Code, msg.Code, "kind %s has no message", k)
		if prev, dup := seen[msg.Code]; dup {
			t.Errorf("kinds %s and %s share code %s", prev, k, msg.Code)
		}
		seen[msg.Code] = k
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"metadata", &csvw.MetadataError{Path: "primaryKey", Message: "unknown column"}, "META001"},
		{"csv", fmt.Errorf("invalid csv a.csv: %w", errors.New("bare quote")), "FILE002"},
		{"no file", ErrNoFiles, "FILE003"},
		{"unknown table", fmt.Errorf("%w for x.csv", ErrUnknownTable), "FILE004"},
		{"busy", ErrTooManyRuns, "RUN001"},
		{"cancelled", context.Canceled, "RUN002"},
		{"timeout", fmt.Errorf("read: %w", context.DeadlineExceeded), "RUN003"},
		{"db down", errors.New("dial tcp: connection refused"), "DB001"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Equal(t, UserMessage{}, MapError(nil))
	assert.Empty(t, FormatUserError(nil))
	assert.False(t, IsUserFacing(nil))
}

func TestFormatUserError(t *testing.T) {
	assert.Equal(t, "The validator is busy (Code: RUN001). Please wait a moment and try again",
		FormatUserError(ErrTooManyRuns))
	assert.True(t, IsUserFacing(ErrTooManyRuns))
	assert.False(t, IsUserFacing(errors.New("boom")))
}
