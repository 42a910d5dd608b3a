package recognition

import (
	"encoding/binary"
	"fmt"
)

// headerSize is the fixed RIFF/WAVE header length produced by the
// transcoder (PCM, single fmt and data chunk).
const headerSize = 44

const bytesPerSample = 2 // 16-bit signed little-endian

// stripHeader validates the fixed WAV header and returns the raw PCM
// payload together with the declared sample rate.
func stripHeader(data []byte) ([]byte, int, error) {
	if len(data) < headerSize {
		return nil, 0, fmt.Errorf("recognition: file too short for a WAV header (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("recognition: not a RIFF/WAVE file")
	}
	rate := int(binary.LittleEndian.Uint32(data[24:28]))
	if rate <= 0 {
		return nil, 0, fmt.Errorf("recognition: invalid sample rate %d", rate)
	}
	return data[headerSize:], rate, nil
}

// chunkBytes is the payload size for one outbound audio frame: 200 ms of
// samples at the given rate.
func chunkBytes(sampleRate int) int {
	return int(float64(sampleRate)*0.2) * bytesPerSample
}

// splitChunks slices pcm into frames of size chunkBytes(rate); only the
// final frame may be short. The concatenation of all frames is the input.
func splitChunks(pcm []byte, sampleRate int) [][]byte {
	size := chunkBytes(sampleRate)
	if size <= 0 || len(pcm) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(pcm)+size-1)/size)
	for off := 0; off < len(pcm); off += size {
		end := off + size
		if end > len(pcm) {
			end = len(pcm)
		}
		chunks = append(chunks, pcm[off:end])
	}
	return chunks
}
