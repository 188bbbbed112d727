package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanErrorFormatting(t *testing.T) {
	t.Run("includes target when present", func(t *testing.T) {
		err := NewWithTarget(CodeArtifactMissing, "worker exited without producing an artifact", "10.0.0.5")
		assert.Equal(t, "[ARTIFACT_MISSING] worker exited without producing an artifact (target: 10.0.0.5)", err.Error())
	})

	t.Run("omits target when absent", func(t *testing.T) {
		err := New(CodeConfiguration, "missing artifact directory")
		assert.Equal(t, "[CONFIGURATION] missing artifact directory", err.Error())
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("exit status 1")
	err := WrapWithTarget(CodeWorkerExit, "worker failed", "192.168.1.10", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"direct scan error", ErrInvalidTarget("999.1.1.1"), CodeTargetInvalid},
		{"wrapped scan error", fmt.Errorf("run failed: %w", ErrArtifactMissing("10.0.0.1")), CodeArtifactMissing},
		{"plain error", errors.New("boom"), CodeUnknown},
		{"nil chain", fmt.Errorf("outer: %w", errors.New("inner")), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
			assert.True(t, IsCode(tt.err, tt.want))
		})
	}
}

func TestIsBatchFatal(t *testing.T) {
	assert.True(t, IsBatchFatal(ErrInvalidTarget("not-an-ip")))
	assert.True(t, IsBatchFatal(New(CodeConfiguration, "bad config")))
	assert.True(t, IsBatchFatal(New(CodeReportWrite, "cannot write report")))

	assert.False(t, IsBatchFatal(ErrProbeFailed("10.0.0.1", errors.New("timeout"))))
	assert.False(t, IsBatchFatal(ErrWorkerLaunch("10.0.0.1", errors.New("no docker"))))
	assert.False(t, IsBatchFatal(ErrArtifactMalformed("10.0.0.1", errors.New("bad json"))))
	assert.False(t, IsBatchFatal(errors.New("unclassified")))
}
