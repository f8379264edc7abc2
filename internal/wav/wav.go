// Package wav validates and produces the single audio format the recorder
// page uploads: mono, 16-bit linear PCM in a RIFF/WAVE container.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// HeaderSize is the size of the canonical header written by Encode.
	HeaderSize = 44

	formatPCM     = 1
	monoChannels  = 1
	bitsPerSample = 16
)

var (
	// ErrInvalidHeader is returned when the payload is not a RIFF/WAVE file.
	ErrInvalidHeader = errors.New("invalid wav header")
	// ErrUnsupportedFormat is returned for anything other than mono 16-bit PCM.
	ErrUnsupportedFormat = errors.New("unsupported wav format")
	// ErrTruncated is returned when the data chunk is shorter than declared.
	ErrTruncated = errors.New("truncated wav data")
)

// Header describes the decoded fmt and data chunks.
type Header struct {
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataOffset    int
	DataLen       uint32
}

// Duration returns the playback length of the sample data.
func (h Header) Duration() time.Duration {
	if h.ByteRate == 0 {
		return 0
	}
	return time.Duration(uint64(h.DataLen) * uint64(time.Second) / uint64(h.ByteRate))
}

// ParseHeader decodes and validates the header of a WAV payload. Chunks other
// than "fmt " and "data" are skipped.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return h, ErrInvalidHeader
	}

	sawFmt := false
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := binary.LittleEndian.Uint32(b[off+4 : off+8])
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(b) {
				return h, fmt.Errorf("%w: short fmt chunk", ErrInvalidHeader)
			}
			format := binary.LittleEndian.Uint16(b[body : body+2])
			h.Channels = binary.LittleEndian.Uint16(b[body+2 : body+4])
			h.SampleRate = binary.LittleEndian.Uint32(b[body+4 : body+8])
			h.ByteRate = binary.LittleEndian.Uint32(b[body+8 : body+12])
			h.BlockAlign = binary.LittleEndian.Uint16(b[body+12 : body+14])
			h.BitsPerSample = binary.LittleEndian.Uint16(b[body+14 : body+16])
			if err := validateFormat(format, h); err != nil {
				return h, err
			}
			sawFmt = true
		case "data":
			if !sawFmt {
				return h, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidHeader)
			}
			if uint64(body)+uint64(size) > uint64(len(b)) {
				return h, fmt.Errorf("%w: declared %d bytes, have %d", ErrTruncated, size, len(b)-body)
			}
			h.DataOffset = body
			h.DataLen = size
			return h, nil
		}

		// Chunks are word aligned.
		next := uint64(body) + uint64(size) + uint64(size&1)
		if next > uint64(len(b)) {
			break
		}
		off = int(next)
	}

	return h, fmt.Errorf("%w: missing data chunk", ErrInvalidHeader)
}

func validateFormat(format uint16, h Header) error {
	if format != formatPCM {
		return fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, format)
	}
	if h.Channels != monoChannels {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, h.Channels)
	}
	if h.BitsPerSample != bitsPerSample {
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, h.BitsPerSample)
	}
	if h.SampleRate == 0 {
		return fmt.Errorf("%w: zero sample rate", ErrUnsupportedFormat)
	}
	blockAlign := h.Channels * h.BitsPerSample / 8
	if h.BlockAlign != blockAlign || h.ByteRate != h.SampleRate*uint32(blockAlign) {
		return fmt.Errorf("%w: inconsistent byte rate or block align", ErrInvalidHeader)
	}
	return nil
}

// Encode wraps 16-bit samples in a canonical mono WAV container.
func Encode(samples []int16, sampleRate uint32) []byte {
	dataLen := uint32(len(samples) * 2)
	buf := make([]byte, HeaderSize+int(dataLen))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataLen)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], monoChannels)
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], sampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataLen)

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[HeaderSize+2*i:], uint16(s))
	}
	return buf
}
