// Package ingest routes accelerometer samples into one fall detector per device stream.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/resq-app/resq-backend/internal/falldetect"
	"github.com/resq-app/resq-backend/internal/logging"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

// Defaults of Config.
const (
	DefaultBufferSize  = 256
	DefaultIdleTimeout = 5 * time.Minute
	DefaultDeviceID    = "default"
)

// Location is the last known position of a device.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Batch of samples of one device.
type Batch struct {
	UserID   string
	DeviceID string
	Samples  []falldetect.Sample
	Location *Location
}

// FromRequest converts the API representation of a batch.
func FromRequest(userID string, req v1.SensorSamplesRequest) Batch {
	batch := Batch{
		UserID:   userID,
		DeviceID: req.DeviceID,
		Samples:  make([]falldetect.Sample, 0, len(req.Samples)),
	}
	if batch.DeviceID == "" {
		batch.DeviceID = DefaultDeviceID
	}
	for _, s := range req.Samples {
		batch.Samples = append(batch.Samples, falldetect.Sample{X: s.X, Y: s.Y, Z: s.Z, TimestampMs: s.TimestampMs})
	}
	if req.Latitude != nil && req.Longitude != nil {
		batch.Location = &Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	return batch
}

// Fall is a confirmed fall of one device stream.
type Fall struct {
	UserID   string
	DeviceID string
	Event    falldetect.FallEvent
	Location *Location
}

// FallHandler is called from the stream goroutine; the stream does not consume samples until it returns.
type FallHandler func(ctx context.Context, fall Fall)

// Config of the hub.
type Config struct {
	Fall        falldetect.Config
	BufferSize  int
	IdleTimeout time.Duration
	Clock       clock.Clock
}

type streamKey struct {
	userID   string
	deviceID string
}

type stream struct {
	samples  chan falldetect.Sample
	cancel   context.CancelFunc
	location atomic.Pointer[Location]
	lastSeen time.Time
}

// Hub owns the device streams. Each stream is consumed by exactly one goroutine running its detector.
type Hub struct {
	ctx    context.Context
	cancel context.CancelFunc
	config Config
	onFall FallHandler

	mu      sync.Mutex
	closed  bool
	streams map[streamKey]*stream
	wg      sync.WaitGroup
}

// NewHub creates a hub. Streams live until they idle out or ctx is done.
func NewHub(ctx context.Context, config Config, onFall FallHandler) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Hub{
		ctx:     ctx,
		cancel:  cancel,
		config:  config,
		onFall:  onFall,
		streams: map[streamKey]*stream{},
	}
}

// Feed queues the batch into the device stream, starting the stream when needed. It never blocks: samples
// not fitting the stream buffer are dropped. Returns the number of accepted samples.
func (h *Hub) Feed(ctx context.Context, batch Batch) int {
	logger := logging.FromContext(ctx).Named("ingest.Feed")

	if batch.DeviceID == "" {
		batch.DeviceID = DefaultDeviceID
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}

	key := streamKey{userID: batch.UserID, deviceID: batch.DeviceID}
	s, ok := h.streams[key]
	if !ok {
		s = h.start(key)
		h.streams[key] = s
		logger.Debugf("Started stream of device %v/%v", key.userID, key.deviceID)
	}

	if batch.Location != nil {
		loc := *batch.Location
		s.location.Store(&loc)
	}
	s.lastSeen = h.config.Clock.Now()

	accepted := 0
	for _, sample := range batch.Samples {
		select {
		case s.samples <- sample:
			accepted++
		default:
		}
	}

	if dropped := len(batch.Samples) - accepted; dropped > 0 {
		logger.Warnf("Stream of device %v/%v is full, dropped %v samples", key.userID, key.deviceID, dropped)
	}

	return accepted
}

func (h *Hub) start(key streamKey) *stream {
	ctx, cancel := context.WithCancel(h.ctx)
	s := &stream{
		samples: make(chan falldetect.Sample, h.config.BufferSize),
		cancel:  cancel,
	}

	detector := falldetect.New(h.config.Fall, h.config.Clock)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		falldetect.Run(ctx, detector, s.samples, func(event falldetect.FallEvent) {
			logging.FromContext(ctx).Named("ingest.stream").
				Infof("Fall of device %v/%v confirmed, %.2f g", key.userID, key.deviceID, event.MagnitudeG)

			if h.onFall != nil {
				h.onFall(ctx, Fall{
					UserID:   key.userID,
					DeviceID: key.deviceID,
					Event:    event,
					Location: s.location.Load(),
				})
			}
		})
	}()

	return s
}

// Evict stops the streams silent for at least IdleTimeout. Returns how many were stopped.
func (h *Hub) Evict() int {
	now := h.config.Clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	evicted := 0
	for key, s := range h.streams {
		if now.Sub(s.lastSeen) >= h.config.IdleTimeout {
			s.cancel()
			delete(h.streams, key)
			evicted++
		}
	}
	return evicted
}

// Streams reports the number of live streams.
func (h *Hub) Streams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// Run evicts idle streams periodically until ctx is done, then closes the hub.
func (h *Hub) Run(ctx context.Context) {
	logger := logging.FromContext(ctx).Named("ingest.Run")

	ticker := h.config.Clock.Ticker(h.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if n := h.Evict(); n > 0 {
				logger.Debugf("Evicted %v idle streams", n)
			}
		}
	}
}

// Close stops all streams and waits for them to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.streams = map[streamKey]*stream{}
	h.cancel()
	h.mu.Unlock()

	h.wg.Wait()
}
