package intake

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// FieldName is the multipart part carrying the recording.
const FieldName = "audio_file"

// MultipartSlack is allowed on top of the file ceiling for multipart framing and other fields.
const MultipartSlack int64 = 1 << 20

// multipartMemory is how much of the form is buffered in memory before spilling to temp files.
const multipartMemory int64 = 8 << 20

var acceptedContentTypes = map[string]bool{
	"audio/webm": true,
	"video/webm": true,
}

// Upload is the decoded file part of a submission request.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	open        func() (io.ReadCloser, error)
}

// NewUpload builds an Upload over an in-memory or caller-managed source.
func NewUpload(filename, contentType string, size int64, open func() (io.ReadCloser, error)) Upload {
	return Upload{Filename: filename, ContentType: contentType, Size: size, open: open}
}

// Open returns the file content. The caller closes it.
func (u Upload) Open() (io.ReadCloser, error) {
	if u.open == nil {
		return nil, errors.New("upload has no content")
	}
	return u.open()
}

// IsWebM reports whether the client declared WebM either by content type or by name.
func (u Upload) IsWebM() bool {
	if mediaType, _, err := mime.ParseMediaType(u.ContentType); err == nil && acceptedContentTypes[mediaType] {
		return true
	}
	return strings.HasSuffix(u.Filename, ".webm")
}

// Source yields the upload of one request. It is consulted only after the quota gate.
type Source interface {
	Upload() (Upload, error)
	Close() error
}

// RequestSource decodes the upload from an HTTP multipart request.
type RequestSource struct {
	w        http.ResponseWriter
	r        *http.Request
	maxBytes int64
	form     *multipart.Form
}

// NewRequestSource caps the body at maxBytes plus MultipartSlack.
func NewRequestSource(w http.ResponseWriter, r *http.Request, maxBytes int64) *RequestSource {
	return &RequestSource{w: w, r: r, maxBytes: maxBytes}
}

// Upload parses the multipart body and returns the single audio_file part.
func (s *RequestSource) Upload() (Upload, error) {
	return ReadUpload(s.w, s.r, s.maxBytes, &s.form)
}

// Close removes any temp files spilled while parsing.
func (s *RequestSource) Close() error {
	if s.form == nil {
		return nil
	}
	return s.form.RemoveAll()
}

// ReadUpload decodes the request body once. Transport overruns become PayloadTooLarge,
// anything else that is not exactly one audio_file part becomes BadUpload.
// The parsed form is stored in *form so the caller can release its temp files.
func ReadUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, form **multipart.Form) (Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+MultipartSlack)

	mr, err := r.MultipartReader()
	if err != nil {
		return Upload{}, newError(BadUpload, MsgBadUpload, err)
	}
	parsed, err := mr.ReadForm(multipartMemory)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Upload{}, newError(PayloadTooLarge, MsgTransportTooLarge, err)
		}
		return Upload{}, newError(BadUpload, MsgBadUpload, err)
	}
	if form != nil {
		*form = parsed
	}

	files := parsed.File[FieldName]
	if len(files) != 1 {
		return Upload{}, newError(BadUpload, MsgBadUpload, nil)
	}
	fh := files[0]
	if fh.Filename == "" {
		return Upload{}, newError(BadUpload, MsgBadUpload, nil)
	}

	return Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}, nil
}
