package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"audiopipe/internal/core/domain"
)

// TestResolveClassification checks the ordered rule list.
func TestResolveClassification(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want domain.SourceClass
	}{
		{"mp4 link", "https://host.example/files/video.mp4", domain.SourceDirect},
		{"mkv with query", "https://host.example/v/clip.mkv?sig=abc", domain.SourceDirect},
		{"uppercase ext", "https://host.example/MOVIE.MP4", domain.SourceDirect},
		{"webm", "https://cdn.example/a/b/c.webm", domain.SourceDirect},
		{"mailru public share", "https://cloud.mail.ru/public/XXX/YYYYYYYY", domain.SourceNeedsExtractor},
		{"video platform", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.SourceNeedsExtractor},
		{"plain page", "https://example.com/page.html", domain.SourceNeedsExtractor},
	}

	r := New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, err := r.Resolve(context.Background(), tc.url)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if src.Class != tc.want {
				t.Errorf("class = %s, want %s", src.Class, tc.want)
			}
			if src.FetchURL != tc.url {
				t.Errorf("fetch URL = %q, want input URL", src.FetchURL)
			}
		})
	}
}

// TestResolveInvalidURL checks malformed input is a ResolutionError.
func TestResolveInvalidURL(t *testing.T) {
	r := New()
	for _, raw := range []string{"not a url", "ftp.example.com/file", ""} {
		_, err := r.Resolve(context.Background(), raw)
		var resErr *domain.ResolutionError
		if !errors.As(err, &resErr) {
			t.Errorf("Resolve(%q) error = %v, want *ResolutionError", raw, err)
		}
	}
}

// TestResolveCloudPublicExchangesHref checks the provider API round
// trip, including token passthrough.
func TestResolveCloudPublicExchangesHref(t *testing.T) {
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotKey = req.URL.Query().Get("public_key")
		gotAuth = req.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"href":"https://downloader.example/direct/video.mp4"}`))
	}))
	defer srv.Close()

	r := New(WithAPIBaseURL(srv.URL), WithToken("tok-1"))
	src, err := r.Resolve(context.Background(), "https://disk.yandex.ru/d/abc123")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if src.Class != domain.SourceCloudPublic {
		t.Errorf("class = %s", src.Class)
	}
	if src.FetchURL != "https://downloader.example/direct/video.mp4" {
		t.Errorf("fetch URL = %q", src.FetchURL)
	}
	if gotKey != "https://disk.yandex.ru/d/abc123" {
		t.Errorf("public_key = %q", gotKey)
	}
	if gotAuth != "OAuth tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

// TestResolveCloudPublicShortHost checks the yadi.sk alias matches.
func TestResolveCloudPublicShortHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"href":"https://downloader.example/d"}`))
	}))
	defer srv.Close()

	r := New(WithAPIBaseURL(srv.URL))
	src, err := r.Resolve(context.Background(), "https://yadi.sk/i/xyz")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if src.Class != domain.SourceCloudPublic {
		t.Errorf("class = %s", src.Class)
	}
}

// TestResolveCloudPublicAPIFailure checks non-success responses and
// missing hrefs both come back as ResolutionError.
func TestResolveCloudPublicAPIFailure(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-success status", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"missing href", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(`{"error":"resource not found"}`))
		}},
		{"malformed body", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(`{{{`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			r := New(WithAPIBaseURL(srv.URL))
			_, err := r.Resolve(context.Background(), "https://disk.yandex.ru/d/abc123")
			var resErr *domain.ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("error = %v, want *ResolutionError", err)
			}
		})
	}
}

// TestInferredDisplayName checks filename sanitization.
func TestInferredDisplayName(t *testing.T) {
	r := New()
	cases := []struct {
		url  string
		want string
	}{
		{"https://host.example/my%20cool%20video.mp4", "my_cool_video.mp4"},
		{"https://host.example/clip.mkv", "clip.mkv"},
		{"https://example.com/", "video"},
	}
	for _, tc := range cases {
		src, err := r.Resolve(context.Background(), tc.url)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tc.url, err)
		}
		if src.DisplayName != tc.want {
			t.Errorf("Resolve(%q) name = %q, want %q", tc.url, src.DisplayName, tc.want)
		}
	}
}
