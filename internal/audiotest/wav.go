// Package audiotest builds small audio fixtures for tests that exercise the
// upload pipeline end to end.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// wavHeader is the canonical 44 byte RIFF header for mono PCM-16
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// SineWAV returns a mono 16-bit WAV file holding a 440 Hz tone
func SineWAV(duration time.Duration, sampleRate int) []byte {
	n := int(duration.Seconds() * float64(sampleRate))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	dataSize := uint32(len(samples) * 2)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	// writes to a bytes.Buffer cannot fail
	binary.Write(buf, binary.LittleEndian, header)
	binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
