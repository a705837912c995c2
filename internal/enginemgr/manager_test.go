package enginemgr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/infrastructure/resilience"
)

func newTestManager() (*Manager, *SimHost) {
	host := NewSimHost()
	mgr := New(host, zap.NewNop(), nil)
	return mgr, host
}

func TestManagerCreateNavigateDestroy(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	handle, err := mgr.CreateContentView(ctx, "partition-1", ids.TabID(7))
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	require.NoError(t, mgr.Navigate(ctx, handle, "https://example.com"))
	mgr.SetVisible(ctx, handle, true)
	mgr.Destroy(ctx, handle)
}

func TestManagerNavigateUnknownHandleFails(t *testing.T) {
	mgr, _ := newTestManager()
	err := mgr.Navigate(context.Background(), "sim-does-not-exist", "https://example.com")
	assert.Error(t, err)
}

func TestManagerCaptureThumbnailRoundTrips(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	handle, err := mgr.CreateContentView(ctx, "partition-1", ids.TabID(1))
	require.NoError(t, err)

	ref, err := mgr.CaptureThumbnail(ctx, handle)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	dataURL := mgr.ResolveThumbnail(ref)
	assert.Contains(t, dataURL, "data:image/png;base64,")

	mgr.DropThumbnail(ref)
	assert.Empty(t, mgr.ResolveThumbnail(ref))
}

func TestManagerResolveUnknownThumbnailIsEmpty(t *testing.T) {
	mgr, _ := newTestManager()
	assert.Empty(t, mgr.ResolveThumbnail("not-a-real-ref"))
	assert.Empty(t, mgr.ResolveThumbnail(""))
}

// failingHost always errors, letting the create breaker's ReadyToTrip fire
// deterministically within the test's request budget.
type failingHost struct{ SimHost }

func (f *failingHost) CreateContentView(ctx context.Context, profilePartition string) (string, error) {
	return "", errors.New("engine unavailable")
}

func TestManagerCreateBreakerTripsOnRepeatedFailure(t *testing.T) {
	host := &failingHost{}
	mgr := New(host, zap.NewNop(), nil)
	ctx := context.Background()

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = mgr.CreateContentView(ctx, "partition-1", ids.TabID(1))
		assert.Error(t, lastErr)
	}
	assert.Equal(t, resilience.StateOpen, mgr.createBreaker.State())
}
