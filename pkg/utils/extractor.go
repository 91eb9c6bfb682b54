package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingValue is returned when a request carries none of the values an
// extractor needs.
var ErrMissingValue = errors.New("missing rate limiting value")

// Extractor represents the way we will extract a rate limiting value (zone, key
// or tier name) from an HTTP request. This could be a header, the request path,
// or anything available on the request that can be read without side effects.
// Extractors must not read the request body.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

// ExtractorFunc adapts a plain function to an Extractor.
type ExtractorFunc func(r *http.Request) (string, error)

func (f ExtractorFunc) Extract(r *http.Request) (string, error) {
	return f(r)
}

type httpHeaderExtractor struct {
	headers []string
}

// NewHTTPHeadersExtractor creates a new HTTP header extractor
func NewHTTPHeadersExtractor(headers ...string) Extractor {
	return &httpHeaderExtractor{headers: headers}
}

// Extract joins the values of all configured headers with "-". Use headers that
// are guaranteed to be unique for a client.
func (h *httpHeaderExtractor) Extract(r *http.Request) (string, error) {
	if len(h.headers) == 0 {
		return "", fmt.Errorf("%w: no headers configured", ErrMissingValue)
	}

	values := make([]string, 0, len(h.headers))
	for _, key := range h.headers {
		value := strings.TrimSpace(r.Header.Get(key))
		if value == "" {
			return "", fmt.Errorf("%w: the header %v must have a value set", ErrMissingValue, key)
		}
		values = append(values, value)
	}

	return strings.Join(values, "-"), nil
}

type staticExtractor struct {
	value string
}

// NewStaticExtractor returns an Extractor that always yields value.
func NewStaticExtractor(value string) Extractor {
	return &staticExtractor{value: value}
}

func (s *staticExtractor) Extract(*http.Request) (string, error) {
	if s.value == "" {
		return "", ErrMissingValue
	}
	return s.value, nil
}

type fallbackExtractor struct {
	extractors []Extractor
}

// NewFallbackExtractor tries each extractor in order and returns the first value
// found. Errors other than ErrMissingValue stop the search.
func NewFallbackExtractor(extractors ...Extractor) Extractor {
	return &fallbackExtractor{extractors: extractors}
}

func (f *fallbackExtractor) Extract(r *http.Request) (string, error) {
	for _, e := range f.extractors {
		v, err := e.Extract(r)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrMissingValue) {
			return "", err
		}
	}
	return "", ErrMissingValue
}
