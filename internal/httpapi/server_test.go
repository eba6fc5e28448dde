package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParsePositiveInt(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "empty uses default", raw: "", want: 25},
		{name: "valid value", raw: "100", want: 100},
		{name: "below minimum", raw: "0", wantErr: true},
		{name: "above maximum", raw: "501", wantErr: true},
		{name: "not a number", raw: "ten", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parsePositiveInt(tc.raw, 25, 1, 500)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parsePositiveInt(%q): expected error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePositiveInt(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("parsePositiveInt(%q): got %d, want %d", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	if _, err := parseID("0"); err == nil {
		t.Fatalf("zero id must be rejected")
	}
	if _, err := parseID("abc"); err == nil {
		t.Fatalf("non-numeric id must be rejected")
	}
	got, err := parseID(" 42 ")
	if err != nil {
		t.Fatalf("parseID: %v", err)
	}
	if got != 42 {
		t.Fatalf("parseID: got %d, want 42", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{raw: "report.pdf", want: "report.pdf"},
		{raw: "../../etc/passwd", want: "passwd"},
		{raw: "q2 outlook (final).txt", want: "q2_outlook__final_.txt"},
		{raw: "   ", want: "document.txt"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.raw); got != tc.want {
			t.Fatalf("sanitizeFilename(%q): got %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestReadUpload_JSONBody(t *testing.T) {
	t.Parallel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest",
		strings.NewReader(`{"filename":"note.txt","text":"byd exports doubled"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	filename, data, err := readUpload(c)
	if err != nil {
		t.Fatalf("read upload: %v", err)
	}
	if filename != "note.txt" {
		t.Fatalf("filename: got %q, want %q", filename, "note.txt")
	}
	if string(data) != "byd exports doubled" {
		t.Fatalf("data: got %q", data)
	}
}

func TestReadUpload_EmptyText(t *testing.T) {
	t.Parallel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest",
		strings.NewReader(`{"filename":"note.txt","text":"   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	if _, _, err := readUpload(c); err == nil {
		t.Fatalf("empty text must be rejected")
	}
}
