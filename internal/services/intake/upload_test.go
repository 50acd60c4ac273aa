package intake

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
)

type part struct {
	field       string
	filename    string
	contentType string
	body        string
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.filename != "" {
			h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		} else {
			h.Set("Content-Disposition", `form-data; name="`+p.field+`"`)
		}
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/voicenotes", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestReadUpload(t *testing.T) {
	t.Parallel()

	req := multipartRequest(t, part{field: FieldName, filename: "rec.webm", contentType: "audio/webm", body: "data"})
	src := NewRequestSource(httptest.NewRecorder(), req, 1024)
	defer func() { _ = src.Close() }()

	up, err := src.Upload()
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if up.Filename != "rec.webm" || up.ContentType != "audio/webm" || up.Size != 4 {
		t.Errorf("Unexpected upload %+v", up)
	}
	rc, err := up.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if string(data) != "data" {
		t.Errorf("Expected body 'data', got %q", data)
	}
}

func TestReadUpload_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		maxBytes int64
		wantKind Kind
	}{
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/v1/voicenotes", strings.NewReader("{}"))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			maxBytes: 1024,
			wantKind: BadUpload,
		},
		{
			name: "wrong field",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, part{field: "file", filename: "rec.webm", body: "x"})
			},
			maxBytes: 1024,
			wantKind: BadUpload,
		},
		{
			name: "field without file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, part{field: FieldName, body: "x"})
			},
			maxBytes: 1024,
			wantKind: BadUpload,
		},
		{
			name: "two files",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t,
					part{field: FieldName, filename: "a.webm", body: "x"},
					part{field: FieldName, filename: "b.webm", body: "y"},
				)
			},
			maxBytes: 1024,
			wantKind: BadUpload,
		},
		{
			name: "truncated body",
			req: func(t *testing.T) *http.Request {
				r := multipartRequest(t, part{field: FieldName, filename: "a.webm", body: "x"})
				body, _ := io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(body[:len(body)/2]))
				return r
			},
			maxBytes: 1024,
			wantKind: BadUpload,
		},
		{
			name: "over transport cap",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, part{field: FieldName, filename: "a.webm", body: strings.Repeat("x", int(MultipartSlack)+2048)})
			},
			maxBytes: 1024,
			wantKind: PayloadTooLarge,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := NewRequestSource(httptest.NewRecorder(), tt.req(t), tt.maxBytes)
			defer func() { _ = src.Close() }()

			_, err := src.Upload()
			var ie *Error
			if !errors.As(err, &ie) {
				t.Fatalf("Expected *Error, got %v", err)
			}
			if ie.Kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, ie.Kind)
			}
		})
	}
}

func TestUploadIsWebM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename    string
		contentType string
		want        bool
	}{
		{"blob", "audio/webm", true},
		{"blob", "video/webm", true},
		{"blob", "audio/webm; codecs=opus", true},
		{"note.webm", "", true},
		{"note.txt", "text/plain", false},
		{"note.WEBM", "audio/ogg", false},
		{"note.webm.php", "application/x-php", false},
	}
	for _, tt := range tests {
		up := Upload{Filename: tt.filename, ContentType: tt.contentType}
		if got := up.IsWebM(); got != tt.want {
			t.Errorf("IsWebM(%q, %q) = %v, want %v", tt.filename, tt.contentType, got, tt.want)
		}
	}
}
