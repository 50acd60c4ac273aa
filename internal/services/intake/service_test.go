package intake

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/services/quota"
	"github.com/benvon/voicenote-intake/internal/settings"
	"github.com/benvon/voicenote-intake/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generatedName = regexp.MustCompile(`^voicenote_[0-9]+_[0-9a-f]{8}\.webm$`)

type staticSource struct {
	up     Upload
	err    error
	called bool
}

func (s *staticSource) Upload() (Upload, error) {
	s.called = true
	return s.up, s.err
}

func (s *staticSource) Close() error { return nil }

func webmSource(body string) *staticSource {
	return &staticSource{up: bytesUpload("recording.webm", "audio/webm", body)}
}

func bytesUpload(name, contentType, body string) Upload {
	return NewUpload(name, contentType, int64(len(body)), func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	})
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (d *recordingDispatcher) Dispatch(n models.Notification) {
	d.mu.Lock()
	d.sent = append(d.sent, n)
	d.mu.Unlock()
}

type failingQuota struct {
	checkErr  error
	recordErr error
	decision  quota.Decision
	recorded  int
}

func (f *failingQuota) CheckQuota(context.Context, string) (quota.Decision, error) {
	return f.decision, f.checkErr
}

func (f *failingQuota) RecordSubmission(context.Context, string) error {
	f.recorded++
	return f.recordErr
}

type brokenStore struct{ err error }

func (b brokenStore) Save(context.Context, string, io.Reader) (models.Submission, error) {
	return models.Submission{}, b.err
}

type fixture struct {
	svc        *Service
	limiter    *quota.Limiter
	fs         afero.Fs
	dispatcher *recordingDispatcher
}

func newFixture(t *testing.T, maxBytes int64) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	limiter := quota.New(settings.NewMemoryStore(), 5)
	d := &recordingDispatcher{}
	svc := NewService(limiter, storage.New(fs, "https://example.com/voicenotes"), d, maxBytes, nil,
		WithReviewURL("https://example.com/api/v1/admin/voicenotes"))
	return &fixture{svc: svc, limiter: limiter, fs: fs, dispatcher: d}
}

func asIntakeError(t *testing.T, err error) *Error {
	t.Helper()
	var ie *Error
	require.True(t, errors.As(err, &ie), "expected *intake.Error, got %v", err)
	return ie
}

func TestSubmit_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1024)
	res, err := f.svc.Submit(context.Background(), Request{
		Method:   http.MethodPost,
		ClientIP: "203.0.113.5",
		Source:   webmSource("webm-bytes"),
	})
	require.NoError(t, err)
	assert.Regexp(t, generatedName, res.Filename)
	assert.Equal(t, "https://example.com/voicenotes/"+res.Filename, res.URL)

	data, err := afero.ReadFile(f.fs, "/"+res.Filename)
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(data))

	entries, err := f.limiter.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Count)

	require.Len(t, f.dispatcher.sent, 1)
	n := f.dispatcher.sent[0]
	assert.Equal(t, res.Filename, n.Filename)
	assert.Equal(t, res.URL, n.URL)
	assert.Equal(t, "https://example.com/api/v1/admin/voicenotes", n.ReviewURL)
}

func TestSubmit_MethodCheckedFirst(t *testing.T) {
	t.Parallel()

	q := &failingQuota{checkErr: errors.New("must not be called")}
	src := webmSource("x")
	svc := NewService(q, brokenStore{}, nil, 1024, nil)

	_, err := svc.Submit(context.Background(), Request{Method: http.MethodGet, ClientIP: "203.0.113.5", Source: src})
	ie := asIntakeError(t, err)
	assert.Equal(t, MethodNotAllowed, ie.Kind)
	assert.Equal(t, http.StatusMethodNotAllowed, ie.StatusCode())
	assert.False(t, src.called)
}

func TestSubmit_QuotaExceededAfterFive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1024)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.svc.Submit(ctx, Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: webmSource("x")})
		require.NoError(t, err, "submission %d", i+1)
	}

	src := webmSource("x")
	_, err := f.svc.Submit(ctx, Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: src})
	ie := asIntakeError(t, err)
	assert.Equal(t, QuotaExceeded, ie.Kind)
	assert.Equal(t, http.StatusTooManyRequests, ie.StatusCode())
	assert.Equal(t, "You have reached the limit of 5 submissions allowed per day. Please try again tomorrow.", ie.Detail())
	assert.False(t, src.called, "upload must not be read once the quota is exhausted")

	// Another client is unaffected.
	_, err = f.svc.Submit(ctx, Request{Method: http.MethodPost, ClientIP: "198.51.100.7", Source: webmSource("x")})
	assert.NoError(t, err)
}

func TestSubmit_QuotaUnavailableIsInternalError(t *testing.T) {
	t.Parallel()

	q := &failingQuota{checkErr: quota.ErrUnavailable}
	svc := NewService(q, brokenStore{}, nil, 1024, nil)

	_, err := svc.Submit(context.Background(), Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: webmSource("x")})
	ie := asIntakeError(t, err)
	assert.Equal(t, InternalError, ie.Kind)
	assert.Equal(t, http.StatusInternalServerError, ie.StatusCode())
	assert.ErrorIs(t, err, quota.ErrUnavailable)
}

func TestSubmit_Gates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		source   *staticSource
		maxBytes int64
		wantKind Kind
		wantMsg  string
	}{
		{
			name:     "missing file",
			source:   &staticSource{err: newError(BadUpload, MsgBadUpload, nil)},
			maxBytes: 1024,
			wantKind: BadUpload,
			wantMsg:  MsgBadUpload,
		},
		{
			name:     "plain source error",
			source:   &staticSource{err: errors.New("unexpected EOF")},
			maxBytes: 1024,
			wantKind: BadUpload,
			wantMsg:  MsgBadUpload,
		},
		{
			name:     "too large",
			source:   &staticSource{up: bytesUpload("a.webm", "audio/webm", strings.Repeat("x", 2048))},
			maxBytes: 1024,
			wantKind: PayloadTooLarge,
			wantMsg:  "File size exceeds 1024 byte limit.",
		},
		{
			name:     "text file",
			source:   &staticSource{up: bytesUpload("note.txt", "text/plain", "hello")},
			maxBytes: 1024,
			wantKind: UnsupportedMediaType,
			wantMsg:  MsgUnsupportedType,
		},
		{
			name:     "size checked before type",
			source:   &staticSource{up: bytesUpload("note.txt", "text/plain", strings.Repeat("x", 2048))},
			maxBytes: 1024,
			wantKind: PayloadTooLarge,
			wantMsg:  "File size exceeds 1024 byte limit.",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.maxBytes)
			_, err := f.svc.Submit(context.Background(), Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: tt.source})
			ie := asIntakeError(t, err)
			assert.Equal(t, tt.wantKind, ie.Kind)
			assert.Equal(t, tt.wantMsg, ie.Message)

			entries, err := f.limiter.Entries(context.Background())
			require.NoError(t, err)
			assert.Empty(t, entries, "refused submissions are not counted")
			assert.Empty(t, f.dispatcher.sent)
		})
	}
}

func TestSubmit_AcceptsWebMByTypeOrName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		filename    string
		contentType string
	}{
		{"audio/webm", "blob", "audio/webm"},
		{"video/webm", "blob", "video/webm"},
		{"codec parameter", "blob", "audio/webm;codecs=opus"},
		{"extension only", "note.webm", "application/octet-stream"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, 1024)
			_, err := f.svc.Submit(context.Background(), Request{
				Method:   http.MethodPost,
				ClientIP: "203.0.113.5",
				Source:   &staticSource{up: bytesUpload(tt.filename, tt.contentType, "x")},
			})
			assert.NoError(t, err)
		})
	}
}

func TestSubmit_StorageFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"directory", storage.ErrDirectory, MsgDirectoryFailed},
		{"move", errors.New("permission denied"), MsgMoveFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := &failingQuota{decision: quota.Decision{Allowed: true, Limit: 5}}
			svc := NewService(q, brokenStore{err: tt.err}, nil, 1024, nil)
			_, err := svc.Submit(context.Background(), Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: webmSource("x")})
			ie := asIntakeError(t, err)
			assert.Equal(t, StorageFailure, ie.Kind)
			assert.Equal(t, tt.wantMsg, ie.Message)
			assert.Equal(t, 0, q.recorded)
		})
	}
}

func TestSubmit_RecordFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	q := &failingQuota{decision: quota.Decision{Allowed: true, Limit: 5}, recordErr: quota.ErrUnavailable}
	d := &recordingDispatcher{}
	svc := NewService(q, storage.New(afero.NewMemMapFs(), "https://example.com/v"), d, 1024, nil)

	res, err := svc.Submit(context.Background(), Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: webmSource("x")})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Filename)
	assert.Equal(t, 1, q.recorded)
	assert.Len(t, d.sent, 1)
}

// contextQuota fails once ctx is done, the way a network-backed settings store does.
type contextQuota struct{ *quota.Limiter }

func (q contextQuota) RecordSubmission(ctx context.Context, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.Limiter.RecordSubmission(ctx, clientID)
}

// cancelAfterSave cancels the request once the file has landed.
type cancelAfterSave struct {
	FileStore
	cancel context.CancelFunc
}

func (c cancelAfterSave) Save(ctx context.Context, name string, r io.Reader) (models.Submission, error) {
	sub, err := c.FileStore.Save(ctx, name, r)
	c.cancel()
	return sub, err
}

func TestSubmit_StoredFileCountedAfterCancel(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	limiter := quota.New(settings.NewMemoryStore(), 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := cancelAfterSave{FileStore: storage.New(fs, "https://example.com/v"), cancel: cancel}
	svc := NewService(contextQuota{limiter}, store, nil, 1024, nil)

	res, err := svc.Submit(ctx, Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: webmSource("x")})
	require.NoError(t, err)
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	exists, err := afero.Exists(fs, "/"+res.Filename)
	require.NoError(t, err)
	assert.True(t, exists)

	entries, err := limiter.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "203.0.113.5", entries[0].ClientID)
	assert.Equal(t, 1, entries[0].Count)
}

func TestSubmit_CancelledBeforeStoreLeavesNothing(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	q := &failingQuota{decision: quota.Decision{Allowed: true, Limit: 5}}
	d := &recordingDispatcher{}
	svc := NewService(q, storage.New(fs, "https://example.com/v"), d, 1024, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Submit(ctx, Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: webmSource("x")})
	ie := asIntakeError(t, err)
	assert.Equal(t, StorageFailure, ie.Kind)
	assert.Equal(t, MsgUploadAbandoned, ie.Message)
	assert.Equal(t, 0, q.recorded)
	assert.Empty(t, d.sent)

	infos, err := afero.ReadDir(fs, "/")
	require.NoError(t, err)
	assert.Empty(t, infos, "temp file must be removed")
}

func TestSubmit_DistinctFilenamesForRapidSubmissions(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, 1024)
	f.svc.namer = NewNamer(func() time.Time { return fixed })

	first, err := f.svc.Submit(context.Background(), Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: webmSource("a")})
	require.NoError(t, err)
	second, err := f.svc.Submit(context.Background(), Request{Method: http.MethodPost, ClientIP: "203.0.113.5", Source: webmSource("b")})
	require.NoError(t, err)
	assert.NotEqual(t, first.Filename, second.Filename)
}

func TestNamer(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := NewNamer(func() time.Time { return fixed })

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := n.Next()
		assert.Regexp(t, generatedName, name)
		assert.True(t, strings.HasPrefix(name, "voicenote_1704067200_"))
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
}

func TestErrorStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want int
	}{
		{MethodNotAllowed, http.StatusMethodNotAllowed},
		{QuotaExceeded, http.StatusTooManyRequests},
		{BadUpload, http.StatusBadRequest},
		{PayloadTooLarge, http.StatusRequestEntityTooLarge},
		{UnsupportedMediaType, http.StatusUnsupportedMediaType},
		{StorageFailure, http.StatusInternalServerError},
		{InternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.kind.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, (&Error{Kind: tt.kind}).StatusCode())
		})
	}
}

func TestSizeMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "File size exceeds 50MB limit.", sizeMessage(50*1024*1024))
	assert.Equal(t, "File size exceeds 1024 byte limit.", sizeMessage(1024))
}
