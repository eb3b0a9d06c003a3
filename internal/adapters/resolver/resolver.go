package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"audiopipe/internal/core/domain"
)

// yandexPublicAPI exchanges a public share link for a direct download
// href.
const yandexPublicAPI = "https://cloud-api.yandex.net/v1/disk/public/resources/download"

var (
	directExtRe = regexp.MustCompile(`(?i)\.(mp4|mov|mkv|webm|avi)$`)
	nameCleanRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// rule maps a URL predicate to a source classification. Rules are
// evaluated in order; the first match wins.
type rule struct {
	class domain.SourceClass
	match func(u *url.URL) bool
}

func defaultRules() []rule {
	return []rule{
		{
			class: domain.SourceDirect,
			match: func(u *url.URL) bool { return directExtRe.MatchString(u.Path) },
		},
		{
			class: domain.SourceCloudPublic,
			match: func(u *url.URL) bool {
				host := strings.ToLower(u.Hostname())
				return strings.HasPrefix(host, "disk.yandex.") || host == "yadi.sk"
			},
		},
		{
			// Mail.ru public shares require either page scraping or
			// authentication; both are better served by the general
			// extractor than by a bespoke resolver strategy.
			class: domain.SourceNeedsExtractor,
			match: func(u *url.URL) bool {
				return strings.ToLower(u.Hostname()) == "cloud.mail.ru" &&
					strings.HasPrefix(u.Path, "/public")
			},
		},
	}
}

// Resolver classifies URLs with an ordered rule list and, for
// cloud-public links, calls the provider's public-resource API. It never
// downloads content.
type Resolver struct {
	client *http.Client
	apiURL string
	token  string
	rules  []rule
	logger zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithToken sets the cloud provider access token passed through on API
// calls.
func WithToken(token string) Option {
	return func(r *Resolver) { r.token = token }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.client = client }
}

// WithAPIBaseURL overrides the public-resource API endpoint (for tests).
func WithAPIBaseURL(apiURL string) Option {
	return func(r *Resolver) { r.apiURL = apiURL }
}

// WithLogger sets the resolver's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// New creates a Resolver with the default classification rules.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		client: &http.Client{Timeout: 30 * time.Second},
		apiURL: yandexPublicAPI,
		rules:  defaultRules(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve classifies rawURL and produces a fetchable location. A failed
// cloud-public resolution is returned as *domain.ResolutionError so the
// orchestrator can fall back to the extractor.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (domain.ResolvedSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("not an absolute URL")
		}
		return domain.ResolvedSource{}, &domain.ResolutionError{URL: rawURL, Err: err}
	}

	class := domain.SourceNeedsExtractor
	for _, rule := range r.rules {
		if rule.match(u) {
			class = rule.class
			break
		}
	}
	name := inferName(u)
	r.logger.Debug().Str("url", rawURL).Str("class", string(class)).Msg("classified source")

	switch class {
	case domain.SourceDirect:
		return domain.ResolvedSource{FetchURL: rawURL, DisplayName: name, Class: class}, nil
	case domain.SourceCloudPublic:
		href, err := r.resolvePublicHref(ctx, rawURL)
		if err != nil {
			return domain.ResolvedSource{}, &domain.ResolutionError{URL: rawURL, Err: err}
		}
		return domain.ResolvedSource{FetchURL: href, DisplayName: name, Class: class}, nil
	default:
		return domain.ResolvedSource{FetchURL: rawURL, DisplayName: name, Class: domain.SourceNeedsExtractor}, nil
	}
}

// resolvePublicHref calls the provider's resource-resolution endpoint
// with the public link and returns the direct download href.
func (r *Resolver) resolvePublicHref(ctx context.Context, publicURL string) (string, error) {
	endpoint := r.apiURL + "?public_key=" + url.QueryEscape(publicURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "OAuth "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("public resource API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("public resource API returned status %d", resp.StatusCode)
	}

	var payload struct {
		Href string `json:"href"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode public resource API response: %w", err)
	}
	if payload.Href == "" {
		return "", fmt.Errorf("no href in public resource API response")
	}
	return payload.Href, nil
}

// inferName derives a safe display name from the URL path.
func inferName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		base = ""
	}
	name := strings.Trim(nameCleanRe.ReplaceAllString(base, "_"), "._")
	if name == "" {
		return "video"
	}
	return name
}
