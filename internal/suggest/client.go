package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	MaxContextLength    = 2000
	MaxSuggestionLength = 100
	MaxSuggestions      = 3

	defaultTimeout  = 10 * time.Second
	maxResponseSize = 64 << 10
)

var numbering = regexp.MustCompile(`^\d+\.\s*`)

type Request struct {
	Context  string `json:"context"`
	UserName string `json:"userName"`
}

type response struct {
	Suggestions []string `json:"suggestions"`
	Text        string   `json:"text"`
}

// Client asks the text-suggestion endpoint for reply suggestions. Every failure
// degrades to an empty list.
type Client struct {
	url        string
	httpClient *http.Client
	log        logrus.FieldLogger
}

func NewClient(url string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.WithField("component", "suggest"),
	}
}

func (c *Client) Suggest(ctx context.Context, r Request) []string {
	if c == nil || c.url == "" || strings.TrimSpace(r.Context) == "" {
		return []string{}
	}
	r.Context = truncate(r.Context, MaxContextLength)

	res, err := c.do(ctx, r)
	if err != nil {
		c.log.WithError(err).Warn("suggestion request failed")
		return []string{}
	}

	if len(res.Suggestions) > 0 {
		return clean(res.Suggestions, false)
	}
	return Parse(res.Text)
}

func (c *Client) do(ctx context.Context, r Request) (*response, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	res := &response{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}

// Parse splits free model output into suggestions: by "|" when present, then by
// lines with leading numbering removed, otherwise the whole text is one suggestion.
func Parse(text string) []string {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return []string{}
	case strings.Contains(text, "|"):
		return clean(strings.Split(text, "|"), false)
	case strings.Contains(text, "\n"):
		return clean(strings.Split(text, "\n"), true)
	default:
		return clean([]string{text}, false)
	}
}

func clean(parts []string, stripNumbering bool) []string {
	out := make([]string, 0, MaxSuggestions)
	for _, p := range parts {
		if stripNumbering {
			p = numbering.ReplaceAllString(p, "")
		}
		p = strings.TrimSpace(p)
		if p == "" || utf8.RuneCountInString(p) >= MaxSuggestionLength {
			continue
		}
		out = append(out, p)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
