package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ToneSpec describes a synthetic PCM clip.
type ToneSpec struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Seconds    float64
	Frequency  float64 // Hz, defaults to 440
}

// WriteTone writes a sine tone as a canonical PCM WAV file. It is used to
// produce sample clips for smoke-testing the recognition pipeline.
func WriteTone(path string, spec ToneSpec) error {
	if spec.SampleRate <= 0 || spec.Channels <= 0 || spec.BitDepth <= 0 {
		return fmt.Errorf("invalid tone spec: %+v", spec)
	}
	if spec.Frequency == 0 {
		spec.Frequency = 440
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	frames := int(spec.Seconds * float64(spec.SampleRate))
	amp := float64(int(1)<<(spec.BitDepth-1)-1) * 0.6
	data := make([]int, 0, frames*spec.Channels)
	for i := 0; i < frames; i++ {
		v := int(amp * math.Sin(2*math.Pi*spec.Frequency*float64(i)/float64(spec.SampleRate)))
		for c := 0; c < spec.Channels; c++ {
			data = append(data, v)
		}
	}

	enc := wav.NewEncoder(f, spec.SampleRate, spec.BitDepth, spec.Channels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: spec.Channels, SampleRate: spec.SampleRate},
		Data:           data,
		SourceBitDepth: spec.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encoding tone: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return f.Close()
}
