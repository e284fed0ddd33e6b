package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		data     []byte
		expected string
	}{
		{name: "mp4 by extension", file: "pergunta.mp4", expected: "video/mp4"},
		{name: "upper case extension", file: "PERGUNTA.MOV", expected: "video/quicktime"},
		{name: "webm", file: "clip.webm", expected: "video/webm"},
		{name: "mp3", file: "voz.mp3", expected: "audio/mpeg"},
		{name: "m4a", file: "voz.m4a", expected: "audio/mp4"},
		{name: "sniffed wav", file: "noext", data: wavHeader(), expected: "audio/wav"},
		{name: "sniffed text", file: "notes", data: []byte("hello world"), expected: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectContentType(tt.file, tt.data))
		})
	}
}

// wavHeader is the minimal RIFF/WAVE prefix content sniffers recognise
func wavHeader() []byte {
	b := []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x44\xac\x00\x00\x88\x58\x01\x00\x02\x00\x10\x00data\x00\x00\x00\x00")
	return b
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "pergunta.mp4", []byte("fake video bytes"))

	m, err := LoadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "pergunta.mp4", m.Name)
	assert.Equal(t, "video/mp4", m.ContentType)
	assert.Equal(t, KindVideo, m.Kind())
	assert.Equal(t, int64(16), m.Size)
	assert.Equal(t, path, m.Path())
	assert.False(t, m.Temporary())

	// releasing a user file must never delete it
	require.NoError(t, m.Release())
	assert.FileExists(t, path)
	assert.Nil(t, m.Data)
}

func TestLoadFileRejects(t *testing.T) {
	t.Run("not media", func(t *testing.T) {
		path := writeFile(t, "notes.txt", []byte("just text"))
		_, err := LoadFile(path, 0)
		assert.ErrorIs(t, err, ErrUnsupportedMedia)
	})

	t.Run("too large", func(t *testing.T) {
		path := writeFile(t, "big.mp4", make([]byte, 2048))
		_, err := LoadFile(path, 1024)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.mp4"), 0)
		assert.Error(t, err)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := LoadFile(t.TempDir(), 0)
		assert.Error(t, err)
	})
}

func TestNewMedia(t *testing.T) {
	m, err := NewMedia("voz.ogg", "", []byte("OggS"))
	require.NoError(t, err)
	assert.Equal(t, KindAudio, m.Kind())

	_, err = NewMedia("doc.pdf", "application/pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestSelectionReleasesSuperseded(t *testing.T) {
	dir := t.TempDir()
	first := &Media{Name: "a.mp4", ContentType: "video/mp4", Data: []byte("a"), path: filepath.Join(dir, "a.mp4"), temporary: true}
	require.NoError(t, os.WriteFile(first.path, first.Data, 0o644))
	second := &Media{Name: "b.m4a", ContentType: "audio/mp4", Data: []byte("b")}

	var sel Selection
	require.NoError(t, sel.Set(first))
	assert.Same(t, first, sel.Current())

	require.NoError(t, sel.Set(second))
	assert.Same(t, second, sel.Current())
	assert.NoFileExists(t, first.path)
	assert.Nil(t, first.Data)

	// setting the same media again keeps it alive
	require.NoError(t, sel.Set(second))
	assert.NotNil(t, second.Data)

	require.NoError(t, sel.Clear())
	assert.Nil(t, sel.Current())
	assert.Nil(t, second.Data)
}

func TestRecorderCapture(t *testing.T) {
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "ffmpeg", name)
		gotArgs = args
		out := args[len(args)-1]
		return nil, os.WriteFile(out, []byte("recorded"), 0o644)
	}

	r := NewRecorder(WithCommandRunner(run), WithTempDir(t.TempDir()))
	r.goos = "linux"

	m, err := r.Capture(context.Background(), KindAudio, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "audio/mp4", m.ContentType)
	assert.Equal(t, []byte("recorded"), m.Data)
	assert.True(t, m.Temporary())
	assert.Contains(t, gotArgs, "pulse")
	assert.Contains(t, gotArgs, "5")

	path := m.Path()
	assert.FileExists(t, path)
	require.NoError(t, m.Release())
	assert.NoFileExists(t, path)
	require.NoError(t, m.Release())
}

func TestRecorderCaptureFailure(t *testing.T) {
	dir := t.TempDir()
	run := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("/dev/video0: No such file or directory"), errors.New("exit status 1")
	}

	r := NewRecorder(WithCommandRunner(run), WithTempDir(dir))
	_, err := r.Capture(context.Background(), KindVideo, time.Second)
	assert.ErrorIs(t, err, ErrCaptureFailed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed recordings are cleaned up")
}

func TestRecorderInputArgs(t *testing.T) {
	r := NewRecorder()

	r.goos = "darwin"
	assert.Equal(t, []string{"-f", "avfoundation", "-i", ":0"}, r.inputArgs(KindAudio))

	r.goos = "windows"
	r.VideoDevice, r.AudioDevice = "Cam", "Mic"
	assert.Equal(t, []string{"-f", "dshow", "-i", "video=Cam:audio=Mic"}, r.inputArgs(KindVideo))
}

func TestProbe(t *testing.T) {
	path := writeFile(t, "q.mp4", []byte("x"))
	run := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("codec_type=video\ncodec_type=audio\nduration=12.500000\nformat_name=mov,mp4,m4a\n"), nil
	}

	info, err := probe(context.Background(), run, path)
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, info.Duration)
	assert.True(t, info.HasVideo)
	assert.True(t, info.HasAudio)
	assert.Equal(t, "mov,mp4,m4a", info.Format)
	assert.Equal(t, int64(1), info.FileSize)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{input: "30", expected: 30 * time.Second},
		{input: "1.5", expected: 1500 * time.Millisecond},
		{input: "45s", expected: 45 * time.Second},
		{input: "01:30", expected: 90 * time.Second},
		{input: "01:00:05", expected: time.Hour + 5*time.Second},
		{input: "  00:10  ", expected: 10 * time.Second},
		{input: "", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "1:2:3:4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "01:05", FormatDuration(65*time.Second))
	assert.Equal(t, "01:00:00", FormatDuration(time.Hour))
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KiB", FormatSize(1536))
}

func TestExtensions(t *testing.T) {
	exts := Extensions()
	assert.Contains(t, exts, ".mp4")
	assert.Contains(t, exts, ".wav")
	assert.IsNonDecreasing(t, exts)
}
