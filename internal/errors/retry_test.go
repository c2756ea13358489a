package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		MaxElapsed:   100 * time.Millisecond,
		Multiplier:   2.0,
		ShouldRetry:  IsRetryable,
	}
}

func TestRetry_SucceedsAfterTransientBusy(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return StoreBusy(errors.New("database is locked"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableSurfacesImmediately(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return PathNotFound("/gone")
	})

	assert.Equal(t, 1, attempts)
	assert.True(t, IsCode(err, CodePathNotFound))
}

func TestRetry_ElapsedBudgetSurfacesLastError(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxElapsed = 10 * time.Millisecond

	err := Retry(context.Background(), cfg, func() error {
		return StoreBusy(nil)
	})

	assert.True(t, IsCode(err, CodeStoreBusy))
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(), func() error {
		return StoreBusy(nil)
	})

	assert.True(t, IsCode(err, CodeCancelled))
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, StoreBusy(nil)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestFormatForCLI_IncludesSuggestionAndCode(t *testing.T) {
	out := FormatForCLI(FetchDiverged("notes", "main"), false)

	assert.Contains(t, out, "remote history diverged")
	assert.Contains(t, out, "remove and re-add")
	assert.Contains(t, out, "ERR_503_FETCH_DIVERGED")
}

func TestFormatForJSON_PlainError(t *testing.T) {
	out := FormatForJSON(errors.New("boom"))
	assert.JSONEq(t, `{"error":"boom"}`, out)
}
