// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"vizpipe/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// recorderSlots is the number of blocks the recorder can queue before the
// audio callback starts dropping them.
const recorderSlots = 32

var ErrAlreadyRecording = errors.New("already recording")

type recordedBlock struct {
	slot int
	n    int
}

// Recorder writes raw interleaved int32 input to a WAV file. Write copies
// the block into a pre-allocated slot and returns; a background goroutine
// encodes it. When every slot is in use the block is dropped and counted.
type Recorder struct {
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
	shift   uint // int32 -> bit depth

	slots  [][]int32
	free   chan int
	filled chan recordedBlock
	quit   chan struct{}
	done   chan struct{}

	dropped atomic.Uint64
	written atomic.Uint64
	err     error
}

// NewRecorder creates filename and starts the encoder goroutine. bitDepth is
// 16, 24 or 32; blockSize is the number of interleaved samples per Write.
func NewRecorder(filename string, sampleRate, channels, bitDepth, blockSize int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
	if channels < 1 || blockSize < 1 {
		return nil, fmt.Errorf("invalid recorder layout: %d channels, %d samples", channels, blockSize)
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, bitDepth, channels, 1),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			Data:           make([]int, blockSize),
			SourceBitDepth: bitDepth,
		},
		shift:  uint(32 - bitDepth),
		slots:  make([][]int32, recorderSlots),
		free:   make(chan int, recorderSlots),
		filled: make(chan recordedBlock, recorderSlots),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for i := range r.slots {
		r.slots[i] = make([]int32, blockSize)
		r.free <- i
	}

	go r.run()

	log.Infof("Recording: Writing %d-bit %dHz %dch WAV to %s", bitDepth, sampleRate, channels, filename)
	return r, nil
}

// Write queues a block for encoding. It never blocks and reports false when
// the block was dropped. Samples beyond the block size are ignored.
func (r *Recorder) Write(samples []int32) bool {
	select {
	case slot := <-r.free:
		n := copy(r.slots[slot], samples)
		r.filled <- recordedBlock{slot: slot, n: n}
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of blocks dropped because the encoder fell behind.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns the number of blocks encoded so far.
func (r *Recorder) Written() uint64 { return r.written.Load() }

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case b := <-r.filled:
			r.encode(b)
		case <-r.quit:
			for {
				select {
				case b := <-r.filled:
					r.encode(b)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) encode(b recordedBlock) {
	defer func() { r.free <- b.slot }()
	if r.err != nil {
		return
	}

	src := r.slots[b.slot][:b.n]
	r.buf.Data = r.buf.Data[:b.n]
	for i, sample := range src {
		r.buf.Data[i] = int(sample >> r.shift)
	}

	if err := r.encoder.Write(r.buf); err != nil {
		r.err = err
		log.Errorf("Recording: Error writing to WAV file: %v", err)
		return
	}
	r.written.Add(1)
}

// Close flushes queued blocks, finalizes the WAV header and closes the file.
// Writes racing with Close are either encoded or silently discarded.
func (r *Recorder) Close() error {
	close(r.quit)
	<-r.done

	errs := []error{r.err}
	if err := r.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("finalize wav: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if d := r.dropped.Load(); d > 0 {
		log.Warnf("Recording: %d blocks dropped", d)
	}
	return errors.Join(errs...)
}

// RecordingPath returns a timestamped WAV path inside dir, creating dir.
func RecordingPath(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "vizpipe-"+now.Format("20060102-150405")+".wav"), nil
}

// StartRecording begins recording the raw input to filename.
func (e *Engine) StartRecording(filename string) error {
	if e.recorder.Load() != nil {
		return ErrAlreadyRecording
	}

	r, err := NewRecorder(filename, int(e.cfg.SampleRate), e.cfg.InputChannels,
		e.bitDepth, e.cfg.FramesPerBuffer*e.cfg.InputChannels)
	if err != nil {
		return err
	}

	if !e.recorder.CompareAndSwap(nil, r) {
		r.Close()
		os.Remove(filename)
		return ErrAlreadyRecording
	}
	return nil
}

// StopRecording finalizes the current recording, if any.
func (e *Engine) StopRecording() error {
	r := e.recorder.Swap(nil)
	if r == nil {
		return nil
	}
	return r.Close()
}

// IsRecording reports whether input is being recorded.
func (e *Engine) IsRecording() bool {
	return e.recorder.Load() != nil
}
