// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"vizpipe/internal/log"
	"vizpipe/internal/pipeline"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrInvalidWAV = errors.New("not a valid WAV file")

// FileSource decodes a PCM WAV file block by block and feeds the pipeline,
// standing in for the live engine when analyzing recordings.
type FileSource struct {
	file    *os.File
	decoder *wav.Decoder

	sampleRate float64
	channels   int
	bitDepth   int
	frames     int // block size in frames

	buf  *audio.IntBuffer
	mono []float64
}

// OpenFile opens path and prepares blocks of frames samples per channel.
func OpenFile(path string, frames int) (*FileSource, error) {
	if frames < 1 {
		return nil, fmt.Errorf("invalid block size: %d", frames)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	format := decoder.Format()
	bitDepth := int(decoder.BitDepth)
	if format == nil || format.NumChannels < 1 || format.SampleRate < 1 || bitDepth < 16 || bitDepth > 32 {
		file.Close()
		return nil, fmt.Errorf("%w: unsupported format in %s", ErrInvalidWAV, path)
	}

	log.Infof("File: %s (%dHz, %dch, %d-bit)", path, format.SampleRate, format.NumChannels, bitDepth)

	return &FileSource{
		file:       file,
		decoder:    decoder,
		sampleRate: float64(format.SampleRate),
		channels:   format.NumChannels,
		bitDepth:   bitDepth,
		frames:     frames,
		buf: &audio.IntBuffer{
			Format:         format,
			Data:           make([]int, frames*format.NumChannels),
			SourceBitDepth: bitDepth,
		},
		mono: make([]float64, frames),
	}, nil
}

func (f *FileSource) SampleRate() float64 { return f.sampleRate }
func (f *FileSource) Channels() int       { return f.channels }

// BlockDuration is the real time covered by one full block.
func (f *FileSource) BlockDuration() time.Duration {
	return time.Duration(float64(f.frames) / f.sampleRate * float64(time.Second))
}

// Run decodes the whole file through driver. Timestamps come from the
// sample position, so results do not depend on pacing. With realtime set,
// blocks are released at the rate they would arrive from a device. The
// final partial block is dispatched as is and yields an empty spectrum.
// It returns the number of blocks processed.
func (f *FileSource) Run(ctx context.Context, driver *pipeline.Driver, realtime bool) (int, error) {
	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(f.BlockDuration())
		defer ticker.Stop()
	}

	scale := 1.0 / (float64(f.channels) * float64(int64(1)<<(f.bitDepth-1)))
	blocks := 0
	position := 0 // frames consumed

	for {
		if err := ctx.Err(); err != nil {
			return blocks, err
		}

		f.buf.Data = f.buf.Data[:cap(f.buf.Data)]
		n, err := f.decoder.PCMBuffer(f.buf)
		if err != nil {
			return blocks, fmt.Errorf("decode block %d: %w", blocks, err)
		}
		frames := n / f.channels
		if frames == 0 {
			return blocks, nil
		}

		for i := range frames {
			var sum int
			for _, s := range f.buf.Data[i*f.channels : (i+1)*f.channels] {
				sum += s
			}
			f.mono[i] = float64(sum) * scale
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return blocks, ctx.Err()
			case <-ticker.C:
			}
		}

		driver.Process(pipeline.Block{
			Samples:    f.mono[:frames],
			SampleRate: f.sampleRate,
			Channels:   f.channels,
			Timestamp:  float64(position) / f.sampleRate,
		})
		position += frames
		blocks++
	}
}

// Close closes the underlying file.
func (f *FileSource) Close() error {
	return f.file.Close()
}
