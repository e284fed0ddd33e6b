package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrCaptureFailed covers every camera/microphone failure: missing
// permission, busy or absent device, ffmpeg not installed.
var ErrCaptureFailed = errors.New("erro ao acessar câmera/microfone. Verifique as permissões")

// DefaultRecordDuration is used when a caller does not ask for a length
const DefaultRecordDuration = 30 * time.Second

// Provider yields a recorded clip as a media blob
type Provider interface {
	Capture(ctx context.Context, kind Kind, duration time.Duration) (*Media, error)
}

// CommandRunner runs an external tool and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Recorder captures from the default camera and microphone with ffmpeg
type Recorder struct {
	// VideoDevice and AudioDevice override the per-OS defaults
	VideoDevice string
	AudioDevice string

	// TempDir receives the recordings; empty uses os.TempDir
	TempDir string

	logger zerolog.Logger
	run    CommandRunner
	goos   string
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger
func WithRecorderLogger(logger zerolog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger.With().Str("component", "capture").Logger()
	}
}

// WithCommandRunner replaces exec, mainly for tests
func WithCommandRunner(run CommandRunner) RecorderOption {
	return func(r *Recorder) {
		r.run = run
	}
}

// WithDevices overrides the input devices
func WithDevices(video, audio string) RecorderOption {
	return func(r *Recorder) {
		r.VideoDevice = video
		r.AudioDevice = audio
	}
}

// WithTempDir sets where recordings are written
func WithTempDir(dir string) RecorderOption {
	return func(r *Recorder) {
		r.TempDir = dir
	}
}

// NewRecorder creates an ffmpeg backed Provider
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logger: zerolog.Nop(),
		run:    execRunner,
		goos:   runtime.GOOS,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capture records a clip and loads it into memory. The returned Media owns
// its temp file; Release removes it.
func (r *Recorder) Capture(ctx context.Context, kind Kind, duration time.Duration) (*Media, error) {
	if kind != KindVideo && kind != KindAudio {
		return nil, fmt.Errorf("%w: unknown capture kind %q", ErrCaptureFailed, kind)
	}
	if duration <= 0 {
		duration = DefaultRecordDuration
	}

	ext, contentType := ".mp4", "video/mp4"
	if kind == KindAudio {
		ext, contentType = ".m4a", "audio/mp4"
	}

	dir := r.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "capitao-"+string(kind)+"-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	outPath := f.Name()
	f.Close()

	args := append(r.inputArgs(kind), "-t", formatSeconds(duration))
	args = append(args, encodeArgs(kind)...)
	args = append(args, "-y", outPath)

	r.logger.Info().Str("kind", string(kind)).Dur("duration", duration).Str("output", outPath).Msg("recording")

	output, err := r.run(ctx, "ffmpeg", args...)
	if err != nil {
		os.Remove(outPath)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Error().Err(err).Str("ffmpeg_output", tail(string(output), 512)).Msg("recording failed")
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil || len(data) == 0 {
		os.Remove(outPath)
		return nil, fmt.Errorf("%w: recording produced no data", ErrCaptureFailed)
	}

	return &Media{
		Name:        fmt.Sprintf("%s-%d%s", kind, time.Now().Unix(), ext),
		ContentType: contentType,
		Data:        data,
		Size:        int64(len(data)),
		path:        outPath,
		temporary:   true,
	}, nil
}

// inputArgs selects the platform capture framework
func (r *Recorder) inputArgs(kind Kind) []string {
	video, audio := r.VideoDevice, r.AudioDevice

	switch r.goos {
	case "darwin":
		if video == "" {
			video = "0"
		}
		if audio == "" {
			audio = "0"
		}
		if kind == KindAudio {
			return []string{"-f", "avfoundation", "-i", ":" + audio}
		}
		return []string{"-f", "avfoundation", "-framerate", "30", "-i", video + ":" + audio}
	case "windows":
		if video == "" {
			video = "Integrated Camera"
		}
		if audio == "" {
			audio = "Microphone"
		}
		if kind == KindAudio {
			return []string{"-f", "dshow", "-i", "audio=" + audio}
		}
		return []string{"-f", "dshow", "-i", "video=" + video + ":audio=" + audio}
	default:
		if video == "" {
			video = "/dev/video0"
		}
		if audio == "" {
			audio = "default"
		}
		if kind == KindAudio {
			return []string{"-f", "pulse", "-i", audio}
		}
		return []string{"-f", "v4l2", "-i", video, "-f", "pulse", "-i", audio}
	}
}

func encodeArgs(kind Kind) []string {
	if kind == KindAudio {
		return []string{"-vn", "-c:a", "aac", "-b:a", "128k"}
	}
	return []string{"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p", "-c:a", "aac", "-b:a", "128k"}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// MediaInfo is what the preview box shows about a selected file
type MediaInfo struct {
	Path     string
	Duration time.Duration
	Format   string
	HasVideo bool
	HasAudio bool
	FileSize int64
}

// Probe inspects a file with ffprobe
func Probe(ctx context.Context, path string) (*MediaInfo, error) {
	return probe(ctx, execRunner, path)
}

func probe(ctx context.Context, run CommandRunner, path string) (*MediaInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access file: %w", err)
	}

	out, err := run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration,format_name:stream=codec_type",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to probe media: %w", err)
	}

	info := &MediaInfo{Path: path, FileSize: stat.Size()}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "duration":
			if secs, err := strconv.ParseFloat(value, 64); err == nil {
				info.Duration = time.Duration(secs * float64(time.Second))
			}
		case "format_name":
			info.Format = value
		case "codec_type":
			switch value {
			case "video":
				info.HasVideo = true
			case "audio":
				info.HasAudio = true
			}
		}
	}
	return info, nil
}

// CheckFFmpeg checks if ffmpeg is installed
func CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found. Please install ffmpeg to record questions")
	}
	return nil
}

// CheckFFprobe checks if ffprobe is installed
func CheckFFprobe() error {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return fmt.Errorf("ffprobe not found. Please install ffmpeg first")
	}
	return nil
}

// FormatDuration formats a duration as MM:SS, or HH:MM:SS past an hour
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// ParseDuration accepts HH:MM:SS, MM:SS, plain seconds or a Go duration ("45s")
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}

	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds: %s", parts[len(parts)-1])
	}
	total := time.Duration(secs * float64(time.Second))

	mins, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes: %s", parts[len(parts)-2])
	}
	total += time.Duration(mins) * time.Minute

	if len(parts) == 3 {
		hours, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("invalid hours: %s", parts[0])
		}
		total += time.Duration(hours) * time.Hour
	}
	return total, nil
}
