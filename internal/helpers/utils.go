package helpers

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// URL2ServiceRobust parses a URL string and extracts the host (with port).
// Adds scheme if missing to help url.Parse work correctly.
func URL2ServiceRobust(urlStr string) (string, error) {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		urlStr = "http://" + urlStr
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	return parsedURL.Host, nil
}

// SplitIDs splits a "+"-joined endpoint id list, dropping empty elements.
// A "+" in a URL path may arrive decoded as a space, so both are accepted.
func SplitIDs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ' '
	})
	return fields
}

// DebugHTTPTransport wraps an http.RoundTripper to log request/response details
type DebugHTTPTransport struct {
	Transport http.RoundTripper
	Logger    logrus.FieldLogger
}

// RoundTrip implements http.RoundTripper interface with debugging
func (d *DebugHTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := d.Logger.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})
	log.Debug("outbound request")

	resp, err := d.Transport.RoundTrip(req)
	if err != nil {
		log.WithError(err).Debug("request failed")
		return resp, err
	}

	log = log.WithField("status", resp.StatusCode)
	if resp.StatusCode < 400 {
		log.Debug("response received")
		return resp, nil
	}

	// Read and log the body of error responses, then restore it for the caller
	bodyBytes, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		log.WithError(readErr).Debug("failed to read error response body")
	} else {
		log.WithField("body", string(bodyBytes)).Debug("error response")
	}
	resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	return resp, nil
}

// EnableHTTPDebugLogging wraps the transport with debug logging
func EnableHTTPDebugLogging(transport http.RoundTripper, logger logrus.FieldLogger) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &DebugHTTPTransport{
		Transport: transport,
		Logger:    logger,
	}
}
