// Package enginemgr drives the engine resource manager: one content view
// per tracked tab, created and destroyed on the lifecycle scheduler's
// instructions, with create/navigate calls guarded by a circuit breaker so
// a wedged or flapping engine subprocess degrades to fast EngineFailure
// responses instead of retrying into cascading failure.
package enginemgr

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/switchboardhq/supervisor/internal/core/ids"
	"github.com/switchboardhq/supervisor/internal/infrastructure/monitoring"
	"github.com/switchboardhq/supervisor/internal/infrastructure/resilience"
)

// Host is the out-of-process engine subprocess surface: one isolated
// rendering surface ("content view") per tab, bound to its profile's
// storage partition so cookies and site data never cross profiles.
type Host interface {
	CreateContentView(ctx context.Context, profilePartition string) (handle string, err error)
	Navigate(ctx context.Context, handle, url string) error
	SetVisible(ctx context.Context, handle string, visible bool) error
	CaptureThumbnail(ctx context.Context, handle string) (imageBytes []byte, err error)
	Destroy(ctx context.Context, handle string) error
}

// thumbnail is a validated, compressed capture kept in memory until
// DropThumbnail releases it. It is never written to the persistence adapter.
type thumbnail struct {
	mime     string
	compressed []byte
}

// Manager implements lifecycle.EngineManager over a Host, adding handle
// generation, circuit breaking, and thumbnail validation/compression the
// Host itself has no business doing.
type Manager struct {
	host    Host
	logger  *zap.Logger
	metrics *monitoring.Metrics

	createBreaker   *resilience.Breaker
	navigateBreaker *resilience.Breaker

	entropyMu sync.Mutex
	entropy   io.Reader

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu         sync.Mutex
	thumbnails map[string]thumbnail
}

// New wraps host with the breakers and thumbnail pipeline. zstd encoder/
// decoder construction only fails on invalid options, never at the
// defaults used here, so New panics rather than thread an error nobody
// can act on through every call site.
func New(host Host, logger *zap.Logger, metrics *monitoring.Metrics) *Manager {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("enginemgr: zstd encoder: %v", err))
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("enginemgr: zstd decoder: %v", err))
	}

	readyToTrip := func(counts resilience.Counts) bool {
		return counts.ConsecutiveFailures >= 5 ||
			(counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5)
	}

	return &Manager{
		host:    host,
		logger:  logger,
		metrics: metrics,
		createBreaker: resilience.New("engine.create_content_view", resilience.Settings{
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: readyToTrip,
			OnStateChange: func(name string, from, to resilience.State) {
				if to == resilience.StateOpen && metrics != nil {
					metrics.IncBreakerOpen()
				}
			},
		}),
		navigateBreaker: resilience.New("engine.navigate", resilience.Settings{
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: readyToTrip,
			OnStateChange: func(name string, from, to resilience.State) {
				if to == resilience.StateOpen && metrics != nil {
					metrics.IncBreakerOpen()
				}
			},
		}),
		entropy:    rand.Reader,
		encoder:    encoder,
		decoder:    decoder,
		thumbnails: make(map[string]thumbnail),
	}
}

func (m *Manager) newULID() string {
	m.entropyMu.Lock()
	defer m.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}

// CreateContentView asks the host for a new rendering surface and tags it
// with an opaque ULID handle the reducer/scheduler never has to interpret.
func (m *Manager) CreateContentView(ctx context.Context, profilePartition string, tabID ids.TabID) (string, error) {
	result, err := m.createBreaker.Execute(func() (interface{}, error) {
		return m.host.CreateContentView(ctx, profilePartition)
	})
	if err == resilience.ErrCircuitOpen {
		return "", fmt.Errorf("create content view for tab %s: %w", tabID, err)
	}
	if err != nil {
		return "", fmt.Errorf("create content view for tab %s: %w", tabID, err)
	}
	hostHandle := result.(string)
	handle := m.newULID()
	m.logger.Debug("content view created",
		zap.String("handle", handle),
		zap.String("tab_id", tabID.String()),
		zap.String("partition", profilePartition),
	)
	return handle + ":" + hostHandle, nil
}

// Navigate loads url into the content view behind handle.
func (m *Manager) Navigate(ctx context.Context, handle, url string) error {
	hostHandle := hostHandleOf(handle)
	_, err := m.navigateBreaker.Execute(func() (interface{}, error) {
		return nil, m.host.Navigate(ctx, hostHandle, url)
	})
	if err == resilience.ErrCircuitOpen {
		return fmt.Errorf("navigate %s: %w", handle, err)
	}
	if err != nil {
		return fmt.Errorf("navigate %s: %w", handle, err)
	}
	return nil
}

// SetVisible toggles whether a content view is actually painted. It is not
// breaker-guarded: hiding the active view behind a modal overlay must never
// be delayed by a flapping engine, so a failure here is logged and dropped.
func (m *Manager) SetVisible(ctx context.Context, handle string, visible bool) {
	if err := m.host.SetVisible(ctx, hostHandleOf(handle), visible); err != nil {
		m.logger.Warn("set content view visibility failed", zap.String("handle", handle), zap.Error(err))
	}
}

// CaptureThumbnail pulls a snapshot from the content view, validates it is
// actually image data, compresses it, and returns an opaque ref the bridge
// resolves back to a data URL on demand.
func (m *Manager) CaptureThumbnail(ctx context.Context, handle string) (string, error) {
	raw, err := m.host.CaptureThumbnail(ctx, hostHandleOf(handle))
	if err != nil {
		return "", fmt.Errorf("capture thumbnail for %s: %w", handle, err)
	}
	mt := mimetype.Detect(raw)
	if !isImage(mt) {
		return "", fmt.Errorf("capture thumbnail for %s: engine returned non-image data (%s)", handle, mt.String())
	}

	compressed := m.encoder.EncodeAll(raw, nil)
	ref := m.newULID()
	m.mu.Lock()
	m.thumbnails[ref] = thumbnail{mime: mt.String(), compressed: compressed}
	m.mu.Unlock()
	return ref, nil
}

// isImage walks the mimetype match tree since Detect returns the most
// specific match (e.g. image/webp) with image/* as an ancestor, not a
// sibling, so a direct string compare would miss most real captures.
func isImage(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("image/png") || m.Is("image/jpeg") || m.Is("image/webp") || m.Is("image/gif") {
			return true
		}
	}
	return false
}

// ResolveThumbnail decompresses a ref produced by CaptureThumbnail into a
// data URL suitable for the wire snapshot's thumbnail_data_url field. It
// satisfies the bridge package's thumbnailResolver signature.
func (m *Manager) ResolveThumbnail(ref string) string {
	if ref == "" {
		return ""
	}
	m.mu.Lock()
	t, ok := m.thumbnails[ref]
	m.mu.Unlock()
	if !ok {
		return ""
	}
	raw, err := m.decoder.DecodeAll(t.compressed, nil)
	if err != nil {
		m.logger.Warn("thumbnail decompress failed", zap.String("ref", ref), zap.Error(err))
		return ""
	}
	return "data:" + t.mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

// DropThumbnail releases a captured thumbnail from the in-memory cache. The
// scheduler does not call it when a tab is discarded or closed, so cached
// thumbnails otherwise stay for the life of the Manager.
func (m *Manager) DropThumbnail(ref string) {
	if ref == "" {
		return
	}
	m.mu.Lock()
	delete(m.thumbnails, ref)
	m.mu.Unlock()
}

// Destroy tears down the content view behind handle. Destroy is best-effort
// from the scheduler's point of view (it never blocks eviction on engine
// acknowledgement), so failures are logged, not propagated.
func (m *Manager) Destroy(ctx context.Context, handle string) {
	if err := m.host.Destroy(ctx, hostHandleOf(handle)); err != nil {
		m.logger.Warn("destroy content view failed", zap.String("handle", handle), zap.Error(err))
	}
}

// hostHandleOf strips the manager-issued ULID prefix a CreateContentView
// handle carries, recovering the Host's own handle for subsequent calls.
func hostHandleOf(handle string) string {
	for i := 0; i < len(handle); i++ {
		if handle[i] == ':' {
			return handle[i+1:]
		}
	}
	return handle
}
