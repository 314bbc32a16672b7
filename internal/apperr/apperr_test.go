package apperr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
)

func TestKindOf_UnwrapsAppError(t *testing.T) {
	err := apperr.New(apperr.NotFound, "store.GetRun", errors.New("no rows"))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestKindOf_DefaultsUnclassifiedErrorsToTransient(t *testing.T) {
	assert.Equal(t, apperr.Transient, apperr.KindOf(errors.New("boom")))
}

func TestKindOf_UnwrapsThroughWrapping(t *testing.T) {
	inner := apperr.New(apperr.Conflict, "runengine.RequestCancel", errors.New("already terminal"))
	wrapped := errors.New("cancel failed: " + inner.Error())
	// A plain fmt.Errorf-style wrap that doesn't use %w loses the chain;
	// only errors.As-reachable wraps carry the kind through.
	assert.Equal(t, apperr.Transient, apperr.KindOf(wrapped))

	var viaFmtWrap error = &wrapWithUnwrap{inner}
	assert.Equal(t, apperr.Conflict, apperr.KindOf(viaFmtWrap))
}

type wrapWithUnwrap struct{ err error }

func (w *wrapWithUnwrap) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapWithUnwrap) Unwrap() error { return w.err }

func TestIs_MatchesExactKindOnly(t *testing.T) {
	err := apperr.New(apperr.Validation, "httpapi.Execute", errors.New("bad payload"))
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.False(t, apperr.Is(err, apperr.NotFound))
}

func TestError_FormatsOpAndCauseForNewAndNewf(t *testing.T) {
	withCause := apperr.New(apperr.Fatal, "cipher.New", errors.New("bad key"))
	assert.Contains(t, withCause.Error(), "cipher.New")
	assert.Contains(t, withCause.Error(), "bad key")

	noCause := apperr.Newf(apperr.PreconditionFailed, "runengine.CreateRun", "no active version")
	assert.Contains(t, noCause.Error(), "runengine.CreateRun")
	assert.Contains(t, noCause.Error(), "no active version")
}
