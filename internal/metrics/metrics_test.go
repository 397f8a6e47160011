package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStoreSavedLabelsResult(t *testing.T) {
	okBefore := testutil.ToFloat64(storeSaves.WithLabelValues("keystream", "autosave", "ok"))
	errBefore := testutil.ToFloat64(storeSaves.WithLabelValues("keystream", "autosave", "error"))

	StoreSaved("keystream", "autosave", nil)
	StoreSaved("keystream", "autosave", errors.New("disk full"))
	StoreSaved("keystream", "autosave", nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(storeSaves.WithLabelValues("keystream", "autosave", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(storeSaves.WithLabelValues("keystream", "autosave", "error")))
}

func TestCallbackObserved(t *testing.T) {
	before := testutil.ToFloat64(callbackOverBudget.WithLabelValues("keyboard"))

	CallbackObserved("keyboard", 20*time.Microsecond, false)
	CallbackObserved("keyboard", 2*time.Millisecond, true)

	assert.Equal(t, before+1, testutil.ToFloat64(callbackOverBudget.WithLabelValues("keyboard")))
}

func TestEventsMerged(t *testing.T) {
	before := testutil.ToFloat64(eventsMerged.WithLabelValues("clicks"))
	EventsMerged("clicks", 7)
	assert.Equal(t, before+7, testutil.ToFloat64(eventsMerged.WithLabelValues("clicks")))
}
