package enginemgr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// a 1x1 transparent PNG; just enough bytes for mimetype.Detect to resolve
// image/png without pulling in a real rendering surface.
var blankPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

type simView struct {
	partition string
	url       string
	visible   bool
}

// SimHost is a standalone, in-process stand-in for the real engine
// subprocess the embedder integration drives out-of-process. It keeps just
// enough state (current URL, visibility) to make Manager's breaker,
// handle-generation, and thumbnail pipeline exercisable without a wired
// IPC transport to a real content-view host.
type SimHost struct {
	mu      sync.Mutex
	views   map[string]*simView
	counter atomic.Uint64
}

// NewSimHost creates an empty SimHost.
func NewSimHost() *SimHost {
	return &SimHost{views: make(map[string]*simView)}
}

func (s *SimHost) CreateContentView(ctx context.Context, profilePartition string) (string, error) {
	id := s.counter.Add(1)
	handle := fmt.Sprintf("sim-%d", id)
	s.mu.Lock()
	s.views[handle] = &simView{partition: profilePartition}
	s.mu.Unlock()
	return handle, nil
}

func (s *SimHost) Navigate(ctx context.Context, handle, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[handle]
	if !ok {
		return fmt.Errorf("simhost: unknown content view %q", handle)
	}
	v.url = url
	return nil
}

func (s *SimHost) SetVisible(ctx context.Context, handle string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[handle]
	if !ok {
		return fmt.Errorf("simhost: unknown content view %q", handle)
	}
	v.visible = visible
	return nil
}

func (s *SimHost) CaptureThumbnail(ctx context.Context, handle string) ([]byte, error) {
	s.mu.Lock()
	_, ok := s.views[handle]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("simhost: unknown content view %q", handle)
	}
	return blankPNG, nil
}

func (s *SimHost) Destroy(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, handle)
	return nil
}
