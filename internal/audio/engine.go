// SPDX-License-Identifier: MIT
/*
Package audio implements the front-ends that feed the analysis pipeline:
- Live capture using PortAudio (Engine)
- Offline WAV file playback (FileSource)
- Noise gate with a branchless peak detector
- WAV recording of the raw input through a non-blocking slot queue

Thread Safety:
- Gate and recording state are atomics, adjustable while the stream runs
- Buffers are pre-allocated so the callback does not allocate
- The callback locks its OS thread during processing
*/
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"vizpipe/internal/config"
	"vizpipe/internal/log"
	"vizpipe/internal/pipeline"

	"github.com/gordonklaus/portaudio"
)

// int32FullScale maps int32 PCM onto [-1, 1).
const int32FullScale = 1 << 31

type Engine struct {
	cfg      config.AudioConfig
	driver   *pipeline.Driver
	bitDepth int // recording bit depth

	// Audio input handling.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// mono holds the channel fold of the current block; the driver's frame
	// aliases it until the next callback.
	mono  []float64
	start time.Time

	// Noise gate for signal conditioning.
	gateEnabled   atomic.Bool
	gateThreshold atomic.Int32 // Absolute amplitude threshold (0-2147483647)

	recorder atomic.Pointer[Recorder]
}

// NewEngine resolves the configured input device and prepares an engine
// feeding driver. PortAudio must be initialized.
func NewEngine(cfg *config.Config, driver *pipeline.Driver) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}

	e, err := newEngine(cfg.Audio, cfg.Recording.BitDepth, driver)
	if err != nil {
		return nil, err
	}
	e.inputDevice = inputDevice

	if cfg.Audio.LowLatency {
		e.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		e.inputLatency = inputDevice.DefaultHighInputLatency
	}

	log.Infof("Audio: Using input device %q (%dch, latency %v)",
		inputDevice.Name, cfg.Audio.InputChannels, e.inputLatency)

	return e, nil
}

// newEngine builds the device-independent part of the engine.
func newEngine(cfg config.AudioConfig, bitDepth int, driver *pipeline.Driver) (*Engine, error) {
	if driver == nil {
		return nil, errors.New("audio: pipeline driver is required")
	}
	if cfg.InputChannels < 1 || cfg.FramesPerBuffer < 1 {
		return nil, fmt.Errorf("audio: invalid layout %d channels x %d frames", cfg.InputChannels, cfg.FramesPerBuffer)
	}
	if cfg.FramesPerBuffer != driver.FFTSize() {
		log.Warnf("Audio: frames_per_buffer %d differs from FFT size %d", cfg.FramesPerBuffer, driver.FFTSize())
	}

	e := &Engine{
		cfg:      cfg,
		driver:   driver,
		bitDepth: bitDepth,
		mono:     make([]float64, cfg.FramesPerBuffer),
		start:    time.Now(),
	}

	if cfg.GateThreshold > 0 {
		e.SetGateThreshold(cfg.GateThreshold)
		e.EnableGate()
	}

	return e, nil
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.cfg.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.cfg.FramesPerBuffer,
		SampleRate:      e.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return err
	}
	e.inputStream = stream
	e.start = time.Now()

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return err
	}

	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
	}

	return nil
}

// Close stops recording and the input stream.
func (e *Engine) Close() error {
	return errors.Join(e.StopRecording(), e.StopInputStream())
}

// processInputStream is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.processBuffer(in)
}

// processBuffer records the raw block, folds it to mono, applies the gate
// and runs the pipeline on the result.
func (e *Engine) processBuffer(in []int32) {
	if r := e.recorder.Load(); r != nil {
		r.Write(in)
	}

	frames := foldToMono(e.mono, in, e.cfg.InputChannels)
	if !e.gateOpen(in) {
		clear(e.mono[:frames])
	}

	e.driver.Process(pipeline.Block{
		Samples:    e.mono[:frames],
		SampleRate: e.cfg.SampleRate,
		Channels:   e.cfg.InputChannels,
		Timestamp:  time.Since(e.start).Seconds(),
	})
}

// foldToMono averages interleaved int32 frames into dst as floats in
// [-1, 1) and returns the number of frames written.
func foldToMono(dst []float64, in []int32, channels int) int {
	frames := min(len(in)/channels, len(dst))
	scale := 1.0 / (float64(channels) * int32FullScale)

	if channels == 1 {
		for i := range frames {
			dst[i] = float64(in[i]) * scale
		}
		return frames
	}

	for i := range frames {
		var sum int64
		for _, s := range in[i*channels : (i+1)*channels] {
			sum += int64(s)
		}
		dst[i] = float64(sum) * scale
	}
	return frames
}
