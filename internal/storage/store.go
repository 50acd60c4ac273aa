// Package storage keeps submitted voicenote files in a single flat directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/validation"
	"github.com/spf13/afero"
)

// Extension is the only file type kept in the submission directory.
const Extension = ".webm"

const tempSuffix = ".part"

var (
	// ErrNotFound is returned when a submission does not exist.
	ErrNotFound = errors.New("submission not found")
	// ErrInvalidName is returned for names that are not generated voicenote filenames.
	ErrInvalidName = errors.New("invalid submission filename")
	// ErrDirectory is returned when the submission directory cannot be created.
	ErrDirectory = errors.New("submission directory unavailable")
)

// Store is a submission directory. Paths are rooted at "/" inside fs.
type Store struct {
	fs            afero.Fs
	publicBaseURL string
}

// New wraps fs, which must already be rooted at the submission directory.
func New(fs afero.Fs, publicBaseURL string) *Store {
	return &Store{fs: fs, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// NewOnDisk roots the store at dir on the local filesystem.
func NewOnDisk(dir, publicBaseURL string) *Store {
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), publicBaseURL)
}

// EnsureDir creates the submission directory if it is missing.
func (s *Store) EnsureDir(_ context.Context) error {
	if err := s.fs.MkdirAll("/", 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	return nil
}

// Save writes r under name. The data lands in a hidden temp file first and is renamed
// into place, so readers never observe a partial file. An existing file is replaced.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (models.Submission, error) {
	if err := validation.ValidateVoicenoteName(name); err != nil {
		return models.Submission{}, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	if err := s.EnsureDir(ctx); err != nil {
		return models.Submission{}, err
	}

	tmp := "/." + name + tempSuffix
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return models.Submission{}, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return models.Submission{}, fmt.Errorf("write submission: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return models.Submission{}, fmt.Errorf("close submission: %w", err)
	}

	// A cancelled request must not leave a stored file behind.
	if err := ctx.Err(); err != nil {
		_ = s.fs.Remove(tmp)
		return models.Submission{}, fmt.Errorf("submission abandoned: %w", err)
	}

	dst := "/" + name
	if err := s.fs.Rename(tmp, dst); err != nil {
		_ = s.fs.Remove(tmp)
		return models.Submission{}, fmt.Errorf("move submission into place: %w", err)
	}

	info, err := s.fs.Stat(dst)
	if err != nil {
		return models.Submission{}, fmt.Errorf("stat submission: %w", err)
	}
	return s.submission(info), nil
}

// List returns stored submissions, newest first.
func (s *Store) List(_ context.Context) ([]models.Submission, error) {
	infos, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Submission{}, nil
		}
		return nil, fmt.Errorf("read submission directory: %w", err)
	}

	subs := make([]models.Submission, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") || path.Ext(info.Name()) != Extension {
			continue
		}
		subs = append(subs, s.submission(info))
	}

	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].ModifiedAt.Equal(subs[j].ModifiedAt) {
			return subs[i].Filename > subs[j].Filename
		}
		return subs[i].ModifiedAt.After(subs[j].ModifiedAt)
	})
	return subs, nil
}

// Open returns the stored file for reading. The caller closes it.
func (s *Store) Open(_ context.Context, name string) (afero.File, models.Submission, error) {
	if err := validation.ValidateVoicenoteName(name); err != nil {
		return nil, models.Submission{}, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	f, err := s.fs.Open("/" + name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.Submission{}, ErrNotFound
		}
		return nil, models.Submission{}, fmt.Errorf("open submission: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, models.Submission{}, fmt.Errorf("stat submission: %w", err)
	}
	return f, s.submission(info), nil
}

// Delete removes a stored submission.
func (s *Store) Delete(_ context.Context, name string) error {
	if err := validation.ValidateVoicenoteName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	target := "/" + name
	if _, err := s.fs.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("stat submission: %w", err)
	}
	if err := s.fs.Remove(target); err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return nil
}

// URL returns the public address of a stored file.
func (s *Store) URL(name string) string {
	return s.publicBaseURL + "/" + name
}

func (s *Store) submission(info os.FileInfo) models.Submission {
	return models.Submission{
		Filename:   info.Name(),
		URL:        s.URL(info.Name()),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}
}
