package discord

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
)

// renderControl is shared between the render goroutine and the gateway.
// stop is closed at most once; paused and volume are read every frame.
type renderControl struct {
	stop     chan struct{}
	stopOnce sync.Once
	paused   atomic.Bool
	volume   atomic.Uint64 // math.Float64bits of the 0.0..2.0 fraction
}

func newRenderControl(volume float64) *renderControl {
	c := &renderControl{stop: make(chan struct{})}
	c.setVolume(volume)
	return c
}

func (c *renderControl) requestStop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *renderControl) setVolume(fraction float64) {
	c.volume.Store(math.Float64bits(fraction))
}

func (c *renderControl) volumeFraction() float64 {
	return math.Float64frombits(c.volume.Load())
}

// ffmpegStream launches ffmpeg decoding the remote stream into raw signed
// 16-bit little-endian PCM on stdout.
func ffmpegStream(url string) (io.ReadCloser, func(), error) {
	cmd := exec.Command("ffmpeg",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", url,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("command start error: %w", err)
	}

	cleanup := func() {
		cmd.Process.Kill()
		cmd.Wait()
	}

	return reader, cleanup, nil
}

// streamToVoice pumps PCM frames from the stream through the opus encoder
// into the voice connection until the stream ends or stop is closed. A nil
// return means the stream drained normally.
func streamToVoice(stream io.ReadCloser, ctl *renderControl, vc *discordgo.VoiceConnection) error {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("encoder error: %w", err)
	}

	defer stream.Close()

	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		select {
		case <-ctl.stop:
			return nil
		default:
		}

		if ctl.paused.Load() {
			select {
			case <-ctl.stop:
				return nil
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}

		_, err := io.ReadFull(stream, pcmBuf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		fraction := ctl.volumeFraction()
		for i := range intBuf {
			sample := int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
			intBuf[i] = scaleSample(sample, fraction)
		}

		opus, err := encoder.Encode(intBuf, frameSize, len(pcmBuf))
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}

		select {
		case <-ctl.stop:
			return nil
		case vc.OpusSend <- opus:
		}
	}
}

func scaleSample(sample int16, fraction float64) int16 {
	if fraction == 1.0 {
		return sample
	}
	scaled := float64(sample) * fraction
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}
	if scaled < math.MinInt16 {
		return math.MinInt16
	}
	return int16(scaled)
}
