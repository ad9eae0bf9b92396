package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
)

type ContextKey string

const (
	RequestIDPrefix         string     = "r"
	RequestIDContextKey     ContextKey = "request.id"
	RequestNumberContextKey ContextKey = "request.number"
)

var (
	errInvalidBookID   = errors.New("book id provided is not valid")
	errEmptyBody       = errors.New("request body is empty")
	errInvalidQuantity = errors.New("quantity must be a valid integer")
)

// GetValueFromContext returns the value of a given key in the context
// if this key is not available, it returns an empty string.
func GetValueFromContext(ctx context.Context, contextKey ContextKey) string {
	if val, ok := ctx.Value(contextKey).(string); ok {
		return val
	}
	return ""
}

// GetRequestNumberFromContext returns the request number set in
// the context. if not previously set then it returns 0.
func GetRequestNumberFromContext(ctx context.Context) uint64 {
	if val, ok := ctx.Value(RequestNumberContextKey).(uint64); ok {
		return val
	}
	return 0
}

// DecodeBookRequestBody is a helper function to read the content of a book creation or update request.
func DecodeBookRequestBody(r *http.Request, req *BookRequest) error {
	if r.Body == nil {
		return errEmptyBody
	}
	err := jsonCodec.NewDecoder(r.Body).Decode(req)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

// ParseBookID converts the path value into a positive book id.
func ParseBookID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidBookID
	}
	return id, nil
}

// ParseQuantity reads the mandatory integer quantity query parameter.
// The positivity rule is enforced by the book service.
func ParseQuantity(r *http.Request) (int, error) {
	quantity, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("quantity")))
	if err != nil {
		return 0, errInvalidQuantity
	}
	return quantity, nil
}

// ParseFloatQuery reads a mandatory decimal query parameter.
func ParseFloatQuery(r *http.Request, name string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get(name)), 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number", name)
	}
	return value, nil
}

// ParseIntQuery reads a mandatory integer query parameter.
func ParseIntQuery(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer", name)
	}
	return value, nil
}

// GetRequestSourceIP helps find the source IP of the caller.
func GetRequestSourceIP(r *http.Request) string {
	// Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip
	}

	// Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	for _, ip := range strings.Split(ips, ",") {
		ip = strings.TrimSpace(ip)
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	// Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	if net.ParseIP(ip) != nil {
		return ip
	}
	return ""
}

// IsAppRunningInDocker checks the existence of the .dockerenv
// file at the root directory and returns a boolean result. This
// helps know if the App is running in a docker container or not.
func IsAppRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
