// Package testutil builds audio fixtures and tool stand-ins for tests.
package testutil

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PCMFile encodes a sine tone with go-audio/wav and returns its path.
func PCMFile(t *testing.T, dir, name string, sampleRate, channels, bitDepth int, seconds float64) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	frames := int(seconds * float64(sampleRate))
	amp := float64(int(1)<<(bitDepth-1)-1) * 0.5
	data := make([]int, 0, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(amp * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			data = append(data, v)
		}
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close wav encoder: %v", err)
	}
	return path
}

// Header is a canonical 44-byte WAV header with every field settable,
// including ones a real encoder would never produce.
type Header struct {
	Riff       string
	Wave       string
	Format     uint16
	Channels   uint16
	SampleRate uint32
	Bits       uint16
	DataBytes  uint32
}

func CanonicalHeader(sampleRate uint32, channels, bits uint16, dataBytes uint32) Header {
	return Header{
		Riff:       "RIFF",
		Wave:       "WAVE",
		Format:     1,
		Channels:   channels,
		SampleRate: sampleRate,
		Bits:       bits,
		DataBytes:  dataBytes,
	}
}

func (h Header) Bytes() []byte {
	b := make([]byte, 44)
	copy(b[0:4], h.Riff)
	binary.LittleEndian.PutUint32(b[4:8], 36+h.DataBytes)
	copy(b[8:12], h.Wave)
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], 16)
	binary.LittleEndian.PutUint16(b[20:22], h.Format)
	binary.LittleEndian.PutUint16(b[22:24], h.Channels)
	binary.LittleEndian.PutUint32(b[24:28], h.SampleRate)
	blockAlign := uint32(h.Channels) * uint32(h.Bits/8)
	binary.LittleEndian.PutUint32(b[28:32], h.SampleRate*blockAlign)
	binary.LittleEndian.PutUint16(b[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(b[34:36], h.Bits)
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], h.DataBytes)
	return b
}

// HeaderFile writes h followed by payload zero bytes.
func HeaderFile(t *testing.T, dir, name string, h Header, payload int) string {
	t.Helper()
	return RawFile(t, dir, name, append(h.Bytes(), make([]byte, payload)...))
}

// RawFile writes arbitrary bytes.
func RawFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// Script writes an executable shell script standing in for an external tool.
func Script(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-ins need a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("Failed to write script %s: %v", path, err)
	}
	return path
}
