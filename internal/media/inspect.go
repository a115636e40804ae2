package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoAudioStream marks a downloaded file that ffprobe could read but that
// carries no audio.
var ErrNoAudioStream = errors.New("file has no audio stream")

// AudioInfo is the part of an ffprobe report relevant to an episode upload.
type AudioInfo struct {
	Codec       string
	Channels    int
	SampleRate  int
	Duration    time.Duration
	BitRate     int64
	FormatName  string
	StreamCount int
}

type ffprobeReport struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// Inspector runs ffprobe. Run is swappable for tests.
type Inspector struct {
	Binary string
	Run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Available reports whether the ffprobe binary can be found.
func (p Inspector) Available() bool {
	if p.Run != nil {
		return true
	}
	_, err := exec.LookPath(p.binary())
	return err == nil
}

func (p Inspector) binary() string {
	if b := strings.TrimSpace(p.Binary); b != "" {
		return b
	}
	return "ffprobe"
}

// InspectAudio inspects path and returns its first audio stream.
func (p Inspector) InspectAudio(ctx context.Context, path string) (AudioInfo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return AudioInfo{}, errors.New("ffprobe: empty path")
	}
	run := p.Run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		}
	}
	output, err := run(ctx, p.binary(), "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return AudioInfo{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(output)))
	}
	var report ffprobeReport
	if err := json.Unmarshal(output, &report); err != nil {
		return AudioInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	info := AudioInfo{
		FormatName:  report.Format.FormatName,
		BitRate:     nonNegativeInt(report.Format.BitRate),
		StreamCount: len(report.Streams),
	}
	if seconds := parseFloat(report.Format.Duration); !math.IsNaN(seconds) && seconds > 0 {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	for _, stream := range report.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		info.Codec = stream.CodecName
		info.Channels = stream.Channels
		info.SampleRate = int(nonNegativeInt(stream.SampleRate))
		return info, nil
	}
	return info, ErrNoAudioStream
}

func nonNegativeInt(value string) int64 {
	parsed := parseFloat(value)
	if math.IsNaN(parsed) || parsed < 0 {
		return 0
	}
	return int64(parsed)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
