package dailygate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/gatekeeper/core/telegram/netutil"
)

// ErrRemoteUnavailable marks a media index that could not be fetched or was empty.
var ErrRemoteUnavailable = errors.New("media index unavailable")

const maxIndexBytes = 1 << 20

// MediaSource lists candidate media URLs.
type MediaSource interface {
	List(ctx context.Context) ([]string, error)
}

// HTTPSource reads a plain text index with one URL per line.
type HTTPSource struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// NewHTTPSource returns a source with a bounded request timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		URL:     url,
		Timeout: timeout,
		Client:  netutil.BuildHTTPClient(netutil.ClientOptions{Timeout: timeout, RetryAttempts: 1}),
	}
}

// List fetches the index. Any failure, including a timeout, wraps ErrRemoteUnavailable.
func (s *HTTPSource) List(ctx context.Context) ([]string, error) {
	if strings.TrimSpace(s.URL) == "" {
		return nil, fmt.Errorf("%w: no index url configured", ErrRemoteUnavailable)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %s", ErrRemoteUnavailable, resp.Status)
	}

	urls, err := parseIndex(io.LimitReader(resp.Body, maxIndexBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: empty index", ErrRemoteUnavailable)
	}
	return urls, nil
}

func parseIndex(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}
