// Package capture produces the media blobs that get submitted as questions:
// files picked from disk or clips recorded through ffmpeg.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// Kind is the broad media category accepted for upload
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

var (
	// ErrUnsupportedMedia is returned for anything that is not audio or video
	ErrUnsupportedMedia = errors.New("selecione um arquivo de vídeo ou áudio")

	// ErrTooLarge is returned when a file exceeds the configured size limit
	ErrTooLarge = errors.New("file exceeds the maximum upload size")
)

// mediaTypes maps the extensions we expect from phones and screen recorders.
// The system mime table is consulted after it.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".weba": "audio/webm",
}

// Extensions lists the file extensions offered by file pickers, sorted
func Extensions() []string {
	exts := make([]string, 0, len(mediaTypes))
	for ext := range mediaTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Media is an in-memory question blob ready to upload
type Media struct {
	Name        string
	ContentType string
	Data        []byte
	Size        int64

	path      string
	temporary bool

	releaseOnce sync.Once
	releaseErr  error
}

// NewMedia wraps bytes already in memory. An empty content type is sniffed.
func NewMedia(name, contentType string, data []byte) (*Media, error) {
	if contentType == "" {
		contentType = DetectContentType(name, data)
	}
	m := &Media{
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Size:        int64(len(data)),
	}
	if m.Kind() == "" {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedMedia, name, contentType)
	}
	return m, nil
}

// LoadFile reads a file from disk. maxSize <= 0 disables the size check.
func LoadFile(path string, maxSize int64) (*Media, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %s (limit %s)", ErrTooLarge,
			filepath.Base(path), FormatSize(info.Size()), FormatSize(maxSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	m, err := NewMedia(filepath.Base(path), "", data)
	if err != nil {
		return nil, err
	}
	m.path = path
	return m, nil
}

// DetectContentType resolves a MIME type by extension, then by sniffing
func DetectContentType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		if base, _, err := mime.ParseMediaType(ct); err == nil {
			return base
		}
	}
	ct := mimetype.Detect(data).String()
	if base, _, err := mime.ParseMediaType(ct); err == nil {
		return base
	}
	return ct
}

// Kind reports video or audio, or "" for anything else
func (m *Media) Kind() Kind {
	switch {
	case strings.HasPrefix(m.ContentType, "video/"):
		return KindVideo
	case strings.HasPrefix(m.ContentType, "audio/"):
		return KindAudio
	}
	return ""
}

// Path is the file the media was loaded or recorded into, if any
func (m *Media) Path() string {
	return m.path
}

// Temporary reports whether the backing file is owned by this Media
func (m *Media) Temporary() bool {
	return m.temporary
}

// Reader returns a fresh reader over the media bytes
func (m *Media) Reader() io.Reader {
	return bytes.NewReader(m.Data)
}

// Release frees the blob and removes the backing file when it was recorded
// by us. Safe to call more than once.
func (m *Media) Release() error {
	if m == nil {
		return nil
	}
	m.releaseOnce.Do(func() {
		m.Data = nil
		if m.temporary && m.path != "" {
			if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
				m.releaseErr = fmt.Errorf("failed to remove recording: %w", err)
			}
		}
	})
	return m.releaseErr
}

// FormatSize renders a byte count the way the upload form shows it
func FormatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
