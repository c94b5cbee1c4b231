// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"vizpipe/internal/analysis"
	"vizpipe/internal/log"
	"vizpipe/internal/plugin"
	"vizpipe/internal/transport"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 16 * time.Millisecond

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Magnitude Count   | uint16         | 2            | Number of floats (N)    |
| Magnitudes        | []float32      | N * 4        | Normalized spectrum     |
| BPM               | float32        | 4            | Smoothed tempo          |
| Intensity         | float32        | 4            | Beat intensity [0, 1]   |
| Flags             | uint8          | 1            | Bit 0: beat onset       |
+-----------------------------------------------------------------------------+

The tempo trailer follows the magnitudes, so receivers that only read the
first 14+N*4 bytes keep working.
*/
const (
	headerSize  = 4 + 8 + 2
	trailerSize = 4 + 4 + 1

	flagBeat = 1 << 0
)

var ErrShortPacket = errors.New("udp: packet too short")

// Packet is a decoded UDP packet.
type Packet struct {
	Sequence   uint32
	Timestamp  int64
	Magnitudes []float32
	BPM        float32
	Intensity  float32
	IsBeat     bool
}

// DecodePacket parses a packet produced by UDPPublisher.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) < headerSize {
		return Packet{}, ErrShortPacket
	}
	p := Packet{
		Sequence:  binary.BigEndian.Uint32(data[0:]),
		Timestamp: int64(binary.BigEndian.Uint64(data[4:])),
	}
	count := int(binary.BigEndian.Uint16(data[12:]))
	if len(data) < headerSize+count*4+trailerSize {
		return Packet{}, fmt.Errorf("%w: %d bytes for %d magnitudes", ErrShortPacket, len(data), count)
	}

	p.Magnitudes = make([]float32, count)
	off := headerSize
	for i := range p.Magnitudes {
		p.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(data[off:]))
		off += 4
	}
	p.BPM = math.Float32frombits(binary.BigEndian.Uint32(data[off:]))
	p.Intensity = math.Float32frombits(binary.BigEndian.Uint32(data[off+4:]))
	p.IsBeat = data[off+8]&flagBeat != 0
	return p, nil
}

// UDPPublisher is a visualization plugin that sends the latest frame over
// UDP at a fixed interval, independent of the audio block rate.
//
// Render takes the snapshot lock with TryLock and drops the frame if the
// publisher is packing at that moment. Beat flags seen since the last
// packet are latched so a beat is not lost between ticks.
type UDPPublisher struct {
	sender   transport.Transport
	interval time.Duration

	// Start/Stop state.
	mu       sync.Mutex
	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup

	// Latest frame, guarded by snapMu.
	snapMu   sync.Mutex
	snapshot *transport.Snapshot
	fresh    bool
	beat     bool // latched until the next packet

	sequenceNum uint32
	packet      []byte
	dropped     atomic.Uint64
	sent        atomic.Uint64
}

// NewUDPPublisher creates a publisher for spectra of bins values. An
// interval <= 0 falls back to DefaultInterval.
func NewUDPPublisher(interval time.Duration, sender transport.Transport, bins int) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if bins < 0 || bins > math.MaxUint16 {
		return nil, fmt.Errorf("UDPPublisher: %d bins do not fit the packet format", bins)
	}

	if interval <= 0 {
		interval = DefaultInterval
		log.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	log.Infof("UDPPublisher: Initializing (Interval: %s, Bins: %d)", interval, bins)

	return &UDPPublisher{
		sender:   sender,
		interval: interval,
		snapshot: transport.NewSnapshot(bins, 0),
		packet:   make([]byte, 0, headerSize+bins*4+trailerSize),
	}, nil
}

// Render stores the frame for the next tick.
func (p *UDPPublisher) Render(frame analysis.Frame) {
	if !p.snapMu.TryLock() {
		p.dropped.Add(1)
		return
	}
	p.snapshot.Capture(frame, nil)
	p.fresh = true
	p.beat = p.beat || frame.Beat.IsBeat
	p.snapMu.Unlock()
}

// Configure accepts "interval" (time.Duration), applied on the next Start.
func (p *UDPPublisher) Configure(key string, value any) {
	switch key {
	case "interval":
		d, ok := value.(time.Duration)
		if !ok || d <= 0 {
			log.Warnf("UDPPublisher: interval must be a positive time.Duration, got %v", value)
			return
		}
		p.mu.Lock()
		p.interval = d
		p.mu.Unlock()
	default:
		log.Warnf("UDPPublisher: Unknown configuration key %q", key)
	}
}

// Activated starts publishing when the plugin becomes active.
func (p *UDPPublisher) Activated() { p.Start() }

// Deactivated stops publishing.
func (p *UDPPublisher) Deactivated() { p.Stop() }

// Start begins the periodic publishing process. Calling it while running
// is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Debugf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})

	// Capture local variables for the goroutine to avoid data races on p.ticker/p.doneChan
	ticker := p.ticker
	doneChan := p.doneChan
	interval := p.interval
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket(time.Now())
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. Calling it when not running is a no-op.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	log.Infof("UDPPublisher: Publisher goroutine finished (%d sent, %d dropped)", p.sent.Load(), p.dropped.Load())
	return nil
}

// Running reports whether the publisher goroutine is active.
func (p *UDPPublisher) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticker != nil
}

// Sent returns the number of packets handed to the sender.
func (p *UDPPublisher) Sent() uint64 { return p.sent.Load() }

// Dropped returns the number of frames skipped because of lock contention.
func (p *UDPPublisher) Dropped() uint64 { return p.dropped.Load() }

// buildAndSendPacket packs the latest snapshot and sends it. Ticks without
// a new frame send nothing.
func (p *UDPPublisher) buildAndSendPacket(now time.Time) {
	p.snapMu.Lock()
	if !p.fresh {
		p.snapMu.Unlock()
		return
	}
	p.sequenceNum++
	p.packet = appendPacket(p.packet[:0], p.sequenceNum, now.UnixNano(), p.snapshot, p.beat)
	p.fresh = false
	p.beat = false
	p.snapMu.Unlock()

	if err := p.sender.Send(p.packet); err != nil {
		log.Debugf("UDPPublisher: Error sending packet %d: %v", p.sequenceNum, err)
		return
	}
	p.sent.Add(1)
	log.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(p.packet))
}

func appendPacket(buf []byte, seq uint32, timestamp int64, s *transport.Snapshot, beat bool) []byte {
	buf = binary.BigEndian.AppendUint32(buf, seq)
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s.Spectrum)))
	for _, v := range s.Spectrum {
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(float32(v)))
	}
	buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(float32(s.Beat.BPM)))
	buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(float32(s.Beat.Intensity)))

	var flags byte
	if beat {
		flags |= flagBeat
	}
	return append(buf, flags)
}

// Close stops the publisher goroutine. The sender is owned by the caller.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var (
	_ plugin.Plugin    = (*UDPPublisher)(nil)
	_ plugin.Lifecycle = (*UDPPublisher)(nil)
)
