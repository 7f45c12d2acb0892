package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

// PCM is decoded audio: interleaved signed 16-bit little endian samples.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration returns the play time of the PCM data at its native rate.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return 0
	}
	frames := len(p.Data) / (2 * p.Channels)
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// DecodeWAV decodes a WAV payload into 16-bit PCM. Source bit depths other
// than 16 are rescaled.
func DecodeWAV(data []byte) (*PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav payload")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, errors.New("wav payload missing format")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	shift := uint(0)
	if bitDepth > 16 {
		shift = uint(bitDepth - 16)
	}
	scale := uint(0)
	if bitDepth < 16 {
		scale = uint(16 - bitDepth)
	}

	out := make([]byte, 0, len(buf.Data)*2)
	for _, v := range buf.Data {
		s := v
		if shift > 0 {
			s >>= shift
		}
		if scale > 0 {
			s <<= scale
		}
		if s > 32767 {
			s = 32767
		}
		if s < -32768 {
			s = -32768
		}
		out = append(out, byte(uint16(int16(s))), byte(uint16(int16(s))>>8))
	}

	return &PCM{
		Data:       out,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

// Resample converts the PCM data to the target sample rate using nearest
// neighbor frame selection. Good enough for speech; returns the input
// unchanged when the rates already match.
func Resample(p *PCM, rate int) *PCM {
	if rate <= 0 || rate == p.SampleRate {
		return p
	}
	return rescaleFrames(p, float64(rate)/float64(p.SampleRate), rate)
}

// TimeScale resizes the PCM data so it plays in 1/speed of its original
// time at the same sample rate. Pitch shifts with the rate.
func TimeScale(p *PCM, speed float64) *PCM {
	if speed <= 0 || speed == 1.0 {
		return p
	}
	return rescaleFrames(p, 1.0/speed, p.SampleRate)
}

func rescaleFrames(p *PCM, ratio float64, outRate int) *PCM {
	frameSize := 2 * p.Channels
	inFrames := len(p.Data) / frameSize
	outFrames := int(float64(inFrames) * ratio)
	if outFrames <= 0 {
		return &PCM{SampleRate: outRate, Channels: p.Channels}
	}

	out := make([]byte, outFrames*frameSize)
	for i := 0; i < outFrames; i++ {
		src := int(float64(i) / ratio)
		if src >= inFrames {
			src = inFrames - 1
		}
		copy(out[i*frameSize:(i+1)*frameSize], p.Data[src*frameSize:(src+1)*frameSize])
	}
	return &PCM{Data: out, SampleRate: outRate, Channels: p.Channels}
}
