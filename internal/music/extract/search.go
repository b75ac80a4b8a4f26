package extract

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
)

var (
	videoPattern = regexp.MustCompile(`"url":"/watch\?v=([a-zA-Z0-9_-]+)(?:\\u0026list=([a-zA-Z0-9_-]+))?[^"]*`)

	ErrNoVideoMatch = errors.New("no video found for the given title")
)

// SearchResolver turns free-text queries into a watch URL by scraping the
// YouTube results page for the first hit.
type SearchResolver struct {
	BaseURL string
	Client  *http.Client
}

func NewSearchResolver(client *http.Client) *SearchResolver {
	return &SearchResolver{
		BaseURL: "https://www.youtube.com",
		Client:  client,
	}
}

func (r *SearchResolver) FirstVideoURL(query string) (string, error) {
	searchURL := fmt.Sprintf("%s/results?search_query=%s", r.BaseURL, url.QueryEscape(query))

	resp, err := r.Client.Get(searchURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("YouTube search failed with status code %v", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	matches := videoPattern.FindStringSubmatch(string(body))
	if len(matches) > 1 {
		return fmt.Sprintf("%s/watch?v=%s", r.BaseURL, matches[1]), nil
	}

	return "", ErrNoVideoMatch
}
