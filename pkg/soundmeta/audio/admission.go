package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

const (
	canonicalHeaderSize = 44
	pcmFormat           = 1
)

var (
	ErrInvalidContainer    = errors.New("not a RIFF/WAVE container")
	ErrUnsupportedEncoding = errors.New("unsupported encoding: only linear PCM is accepted")
	ErrComputation         = errors.New("cannot compute duration from header")
	ErrTooShort            = errors.New("audio clip is too short")
	ErrUnreadable          = errors.New("audio file cannot be read")
)

// AdmissionPolicy holds the thresholds applied after the header parses.
// Only MinDuration is a hard limit; the rest produce warnings.
type AdmissionPolicy struct {
	MinDuration        float64 // seconds, below this the clip is rejected
	MaxDuration        float64 // seconds, above this a warning is emitted
	LowConfidenceBytes int64   // below this a warning is emitted
	MaxBytes           int64   // above this a warning is emitted
}

func DefaultAdmissionPolicy() AdmissionPolicy {
	return AdmissionPolicy{
		MinDuration:        3,
		MaxDuration:        15,
		LowConfidenceBytes: 50 * 1024,
		MaxBytes:           5 * 1024 * 1024,
	}
}

// Admission is the outcome of inspecting a clip's canonical WAV header.
type Admission struct {
	Valid         bool
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	PCM           bool
	DataBytes     uint32
	Duration      float64 // seconds
	SizeBytes     int64
	Reason        string // set iff !Valid
	Warnings      []string
}

// CheckAdmission reads at most the first 44 bytes of path and decides whether
// the clip is worth fingerprinting and sending to a provider.
// On rejection both a non-nil Admission (Valid=false) and an error wrapping
// one of the Err* sentinels are returned.
func CheckAdmission(path string, policy AdmissionPolicy) (*Admission, error) {
	f, err := os.Open(path)
	if err != nil {
		return reject(&Admission{}, ErrUnreadable, err.Error())
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return reject(&Admission{}, ErrUnreadable, err.Error())
	}
	adm := &Admission{SizeBytes: info.Size()}

	header := make([]byte, canonicalHeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return reject(adm, ErrUnreadable, err.Error())
	}
	header = header[:n]

	if len(header) < 4 || string(header[0:4]) != "RIFF" {
		return reject(adm, ErrInvalidContainer, "missing RIFF marker")
	}
	if len(header) < 12 || string(header[8:12]) != "WAVE" {
		return reject(adm, ErrInvalidContainer, "missing WAVE marker")
	}
	if len(header) < canonicalHeaderSize {
		return reject(adm, ErrInvalidContainer, fmt.Sprintf("header truncated at %d bytes", len(header)))
	}

	format := binary.LittleEndian.Uint16(header[20:22])
	adm.PCM = format == pcmFormat
	adm.Channels = binary.LittleEndian.Uint16(header[22:24])
	adm.SampleRate = binary.LittleEndian.Uint32(header[24:28])
	adm.BitsPerSample = binary.LittleEndian.Uint16(header[34:36])
	adm.DataBytes = binary.LittleEndian.Uint32(header[40:44])

	if !adm.PCM {
		return reject(adm, ErrUnsupportedEncoding, fmt.Sprintf("audio format code %d", format))
	}

	bytesPerSample := uint64(adm.BitsPerSample / 8)
	byteRate := uint64(adm.SampleRate) * uint64(adm.Channels) * bytesPerSample
	if byteRate == 0 {
		return reject(adm, ErrComputation, fmt.Sprintf("rate=%d channels=%d bits=%d",
			adm.SampleRate, adm.Channels, adm.BitsPerSample))
	}
	adm.Duration = float64(adm.DataBytes) / float64(byteRate)

	if adm.Duration < policy.MinDuration {
		return reject(adm, ErrTooShort, fmt.Sprintf("%.2fs is below the %.0fs minimum", adm.Duration, policy.MinDuration))
	}

	if policy.LowConfidenceBytes > 0 && adm.SizeBytes < policy.LowConfidenceBytes {
		adm.Warnings = append(adm.Warnings, fmt.Sprintf("file is only %s, recognition confidence may be low",
			humanize.IBytes(uint64(adm.SizeBytes))))
	}
	if policy.MaxDuration > 0 && adm.Duration > policy.MaxDuration {
		adm.Warnings = append(adm.Warnings, fmt.Sprintf("clip is %.1fs, only the first %.0fs matter for recognition",
			adm.Duration, policy.MaxDuration))
	}
	if policy.MaxBytes > 0 && adm.SizeBytes > policy.MaxBytes {
		adm.Warnings = append(adm.Warnings, fmt.Sprintf("file is %s, larger than the recommended %s",
			humanize.IBytes(uint64(adm.SizeBytes)), humanize.IBytes(uint64(policy.MaxBytes))))
	}

	adm.Valid = true
	return adm, nil
}

func reject(adm *Admission, sentinel error, detail string) (*Admission, error) {
	adm.Valid = false
	adm.Reason = sentinel.Error() + ": " + detail
	return adm, fmt.Errorf("%w: %s", sentinel, detail)
}
