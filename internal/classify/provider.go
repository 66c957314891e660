// Package classify calls remote vision models for a child-safety verdict on a
// single frame, with retry, backoff and error-category handling.
package classify

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Image is one frame ready to send to a provider.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// LoadImage reads a frame file from disk.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read frame: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return Image{Name: filepath.Base(path), MIMEType: mime, Data: data}, nil
}

// Provider is one remote classifier. Classify makes exactly one attempt and
// returns the model's raw text; retry policy lives in Client.
type Provider interface {
	// Name is the registry key, e.g. "zhipu".
	Name() string
	// DisplayName is a human-readable label, e.g. "智谱 GLM-4V".
	DisplayName() string
	// IsConfigured reports whether the provider has the credentials it needs.
	IsConfigured() bool
	// Classify sends one image with the moderation prompt. Failures should be
	// returned as *ProviderError so the client can pick a retry strategy.
	Classify(ctx context.Context, img Image) (string, error)
}

// Category tells the client how to react to a provider failure.
type Category int

const (
	// CategoryOther is retried after the base delay.
	CategoryOther Category = iota
	// CategoryRateLimited is retried with linear backoff.
	CategoryRateLimited
	// CategoryContentRejected means the provider refused the image itself.
	CategoryContentRejected
	// CategoryBilling means the account cannot pay for further calls.
	CategoryBilling
)

func (c Category) String() string {
	switch c {
	case CategoryRateLimited:
		return "rate_limited"
	case CategoryContentRejected:
		return "content_rejected"
	case CategoryBilling:
		return "billing"
	default:
		return "other"
	}
}

// ProviderError is a categorized failure from a single provider attempt.
type ProviderError struct {
	Provider   string
	Category   Category
	StatusCode int
	Code       string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Category.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d", e.StatusCode)
		if e.Code != "" {
			fmt.Fprintf(&b, ", code %s", e.Code)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Registry holds the available providers keyed by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns a registry containing the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %s)", name, strings.Join(r.namesLocked(), ", "))
	}
	return p, nil
}

// List returns all providers sorted by name.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, name := range r.namesLocked() {
		out = append(out, r.providers[name])
	}
	return out
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
