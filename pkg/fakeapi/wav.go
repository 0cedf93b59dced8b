package fakeapi

import (
	"bytes"
	"encoding/binary"
)

const (
	sampleRate    = 16000
	bitsPerSample = 16
	channels      = 1
)

// SilentWAV returns a mono 16-bit PCM WAV file of silence.
func SilentWAV(seconds int) []byte {
	if seconds < 0 {
		seconds = 0
	}

	blockAlign := channels * bitsPerSample / 8
	dataSize := uint32(seconds * sampleRate * blockAlign)

	buf := &bytes.Buffer{}
	buf.Grow(44 + int(dataSize))

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}
