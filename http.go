package trafficlight

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PhasePlaceholder in a body or header value is replaced by the new phase.
const PhasePlaceholder = "{{phase}}"

type HTTPNotifierConfig struct {
	URL                string            `yaml:"url"`
	Method             string            `yaml:"method"`
	Headers            map[string]string `yaml:"headers"`
	Body               string            `yaml:"body"`
	ExpectCode         string            `yaml:"expect_code"`
	NoCheckCertificate bool              `yaml:"no_check_certificate"`
}

// HTTPNotifier sends a request to URL on each transition.
type HTTPNotifier struct {
	URL                string
	Method             string
	Headers            map[string]string
	Body               string
	ExpectCodeFunc     func(code int) bool
	Timeout            time.Duration
	NoCheckCertificate bool

	name string
}

func NewHTTPNotifier(cfg *NotifierConfig) (*HTTPNotifier, error) {
	n := &HTTPNotifier{
		name:               cfg.Name,
		Method:             cfg.HTTP.Method,
		Timeout:            cfg.Timeout,
		NoCheckCertificate: cfg.HTTP.NoCheckCertificate,
		Headers:            cfg.HTTP.Headers,
		Body:               cfg.HTTP.Body,
	}
	u, err := url.Parse(cfg.HTTP.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s: %w", cfg.HTTP.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %s: scheme must be http or https", cfg.HTTP.URL)
	}
	n.URL = u.String()

	// default
	if n.Method == "" {
		n.Method = http.MethodPost
	}
	if n.Body == "" {
		n.Body = PhasePlaceholder
	}
	if cfg.HTTP.ExpectCode == "" {
		n.ExpectCodeFunc = func(code int) bool {
			return code >= 200 && code < 400
		}
	} else {
		n.ExpectCodeFunc, err = newExpectCodeFunc(cfg.HTTP.ExpectCode)
		if err != nil {
			return nil, fmt.Errorf("invalid expect_code %s: %w", cfg.HTTP.ExpectCode, err)
		}
	}
	return n, nil
}

func (n *HTTPNotifier) Name() string {
	return n.name
}

func (n *HTTPNotifier) Notify(ctx context.Context, p Phase) error {
	logger := newLoggerFromContext(ctx).With("name", n.name, "module", "httpnotifier")

	ctx, cancel := context.WithTimeout(ctx, n.Timeout)
	defer cancel()

	body := strings.ReplaceAll(n.Body, PhasePlaceholder, p.String())
	req, err := http.NewRequestWithContext(ctx, n.Method, n.URL, strings.NewReader(body))
	if err != nil {
		return err
	}
	for name, value := range n.Headers {
		req.Header.Set(name, strings.ReplaceAll(value, PhasePlaceholder, p.String()))
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "text/plain")
	}
	req.Header.Set("User-Agent", "trafficlight")

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: n.NoCheckCertificate},
	}
	client := &http.Client{Transport: tr}
	defer client.CloseIdleConnections()

	logger.Debug(fmt.Sprintf("http request %s %s", req.Method, req.URL))
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if !n.ExpectCodeFunc(resp.StatusCode) {
		return fmt.Errorf("expect code not match: %d", resp.StatusCode)
	}
	return nil
}

// newExpectCodeFunc parses a string of comma separated HTTP status codes and
// returns a function that checks if the given code is in the list.
// e.g. "200,201,202-204,300-399"
func newExpectCodeFunc(codes string) (func(code int) bool, error) {
	ranges := strings.Split(codes, ",")
	var parsedRanges []struct{ lower, upper int }

	for _, r := range ranges {
		r = strings.TrimSpace(r) // Remove any leading and trailing whitespaces
		bounds := strings.Split(r, "-")
		for i := range bounds {
			bounds[i] = strings.TrimSpace(bounds[i]) // Trim spaces for each bound
		}
		if len(bounds) == 1 {
			// Single code
			singleCode, err := strconv.Atoi(bounds[0])
			if err != nil {
				return nil, errors.New("invalid code: " + bounds[0])
			}
			parsedRanges = append(parsedRanges, struct{ lower, upper int }{singleCode, singleCode})
		} else if len(bounds) == 2 {
			// Range of codes
			lower, err1 := strconv.Atoi(bounds[0])
			upper, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				return nil, errors.New("invalid range: " + r)
			}
			parsedRanges = append(parsedRanges, struct{ lower, upper int }{lower, upper})
		} else {
			return nil, errors.New("invalid format: " + r)
		}
	}

	return func(code int) bool {
		for _, r := range parsedRanges {
			if r.lower <= code && code <= r.upper {
				return true
			}
		}
		return false
	}, nil
}
