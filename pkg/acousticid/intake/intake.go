// Package intake validates uploaded audio and keeps it in transient storage
// for the lifetime of one analysis.
package intake

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/himanishpuri/AcousticID/pkg/apperr"
	"github.com/himanishpuri/AcousticID/pkg/models"
	"github.com/himanishpuri/AcousticID/pkg/utils"
)

// DefaultMaxBytes is the default upload ceiling (20 MiB).
const DefaultMaxBytes int64 = 20 << 20

const createAttempts = 5

var audioExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
	".m4a": true,
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_.()\- ]`)

// Intake stores accepted uploads under a single transient directory.
type Intake struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

func New(dir string, maxBytes int64) *Intake {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Intake{dir: dir, maxBytes: maxBytes, now: time.Now}
}

func (in *Intake) Dir() string     { return in.dir }
func (in *Intake) MaxBytes() int64 { return in.maxBytes }

// IsAudio reports whether an upload is acceptable: a declared audio/* MIME type
// or one of the known audio extensions.
func IsAudio(filename, mimeType string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "audio/") {
		return true
	}
	return audioExtensions[strings.ToLower(filepath.Ext(filename))]
}

// SanitizeFilename reduces a client-supplied name to its base name and strips
// every character outside [a-zA-Z0-9_.()\- ].
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}

// Store validates upload and writes it to the transient directory. Nothing is
// left on disk when Store returns an error.
func (in *Intake) Store(upload *models.Upload) (*models.UploadHandle, error) {
	if upload == nil || upload.Body == nil {
		return nil, apperr.New(apperr.BadRequest, "No file uploaded")
	}
	if !IsAudio(upload.Filename, upload.MimeType) {
		return nil, apperr.New(apperr.UnsupportedMediaType,
			"Unsupported file format. Please upload an audio file.")
	}

	if err := utils.MakeDir(in.dir); err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "Failed to prepare upload storage", err)
	}

	f, path, err := in.create(SanitizeFilename(upload.Filename))
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "Failed to store uploaded file", err)
	}

	written, copyErr := io.Copy(f, io.LimitReader(upload.Body, in.maxBytes+1))
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil || written > in.maxBytes || written == 0 {
		_ = utils.RemoveFile(path)
	}

	switch {
	case copyErr != nil:
		var tooLarge *http.MaxBytesError
		if errors.As(copyErr, &tooLarge) {
			return nil, in.tooLarge()
		}
		return nil, apperr.Wrap(apperr.BadRequest, "Failed to read uploaded file", copyErr)
	case closeErr != nil:
		return nil, apperr.Wrap(apperr.InternalError, "Failed to store uploaded file", closeErr)
	case written > in.maxBytes:
		return nil, in.tooLarge()
	case written == 0:
		return nil, apperr.New(apperr.BadRequest, "Uploaded file is empty")
	}

	return &models.UploadHandle{
		StoragePath:  path,
		OriginalName: upload.Filename,
		SizeBytes:    written,
		MimeType:     upload.MimeType,
	}, nil
}

// Remove deletes the file behind h. Removing twice is harmless.
func (in *Intake) Remove(h *models.UploadHandle) error {
	if h == nil || h.StoragePath == "" {
		return nil
	}
	return utils.RemoveFile(h.StoragePath)
}

func (in *Intake) tooLarge() error {
	return apperr.New(apperr.PayloadTooLarge,
		fmt.Sprintf("File exceeds the %s upload limit", humanize.IBytes(uint64(in.maxBytes))))
}

// create opens a new file named <unix-nanos>-<name>. O_EXCL guarantees two
// concurrent requests never share a file, even with identical names; on a
// clash the retry adds a random suffix to the timestamp.
func (in *Intake) create(name string) (*os.File, string, error) {
	var lastErr error
	for i := 0; i < createAttempts; i++ {
		prefix := fmt.Sprintf("%d", in.now().UnixNano())
		if i > 0 {
			prefix += "-" + uuid.NewString()[:8]
		}
		path := filepath.Join(in.dir, prefix+"-"+name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("could not allocate a unique upload name: %w", lastErr)
}
