// Package extract resolves a user query (URL or search terms) into a
// playable track: display metadata plus a direct audio stream URL.
//
// YouTube targets go through the native client first; anything else, and any
// native failure, falls back to the yt-dlp helper binary.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"groovebox/internal/music"

	youtube "github.com/kkdai/youtube/v2"
	"golang.org/x/time/rate"
)

var (
	// ErrHelperUnavailable marks failures of the extraction tooling itself
	// (missing yt-dlp binary, JS challenge solving without a runtime) as
	// opposed to a query that simply has no playable result.
	ErrHelperUnavailable = errors.New("extraction helper unavailable")

	ErrNoStreamURL = errors.New("could not extract an audio stream URL")
)

const unknownTitle = "Unknown title"

type YouTube struct {
	client  *youtube.Client
	search  *SearchResolver
	limiter *rate.Limiter
}

// New builds an extractor. proxyURL optionally routes all outbound traffic
// through an http, socks4 or socks5 proxy; empty means direct.
func New(proxyURL string) *YouTube {
	httpClient := clientForProxy(proxyURL)
	return &YouTube{
		client:  &youtube.Client{HTTPClient: httpClient},
		search:  NewSearchResolver(httpClient),
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// Extract resolves query into a Track. Blocking; run off the dispatch loop.
func (e *YouTube) Extract(query, requestedBy string) (music.Track, error) {
	target := strings.TrimSpace(query)
	if target == "" {
		return music.Track{}, errors.New("empty query")
	}

	if !isURL(target) {
		watchURL, err := e.search.FirstVideoURL(target)
		if err != nil {
			return music.Track{}, fmt.Errorf("search failed for %q: %w", query, err)
		}
		target = watchURL
	}

	if isYouTubeURL(target) {
		track, err := e.extractNative(target, requestedBy)
		if err == nil {
			return track, nil
		}
		log.Printf("[WARN] Native extraction failed for %s, falling back to yt-dlp: %v", target, err)
	}

	return e.extractYTDLP(target, query, requestedBy)
}

func (e *YouTube) extractNative(watchURL, requestedBy string) (music.Track, error) {
	videoID, err := extractVideoID(watchURL)
	if err != nil {
		return music.Track{}, err
	}

	_ = e.limiter.Wait(context.Background())

	video, err := e.client.GetVideo(videoID)
	if err != nil {
		return music.Track{}, fmt.Errorf("youtube metadata error: %w", err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return music.Track{}, errors.New("no audio formats found for video")
	}

	streamURL, err := e.client.GetStreamURL(video, &formats[0])
	if err != nil {
		return music.Track{}, fmt.Errorf("get stream URL error: %w", err)
	}

	title := video.Title
	if title == "" {
		title = unknownTitle
	}

	return music.Track{
		Title:       title,
		WebpageURL:  cleanVideoURL(watchURL),
		StreamURL:   streamURL,
		RequestedBy: requestedBy,
	}, nil
}

type ytdlpInfo struct {
	Title      string `json:"title"`
	WebpageURL string `json:"webpage_url"`
	URL        string `json:"url"`
	Formats    []struct {
		URL string `json:"url"`
	} `json:"formats"`
}

func (e *YouTube) extractYTDLP(target, query, requestedBy string) (music.Track, error) {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		return music.Track{}, fmt.Errorf("%w: yt-dlp not found on PATH", ErrHelperUnavailable)
	}

	var output []byte
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(2 * time.Second)
			log.Printf("[INFO] Retrying yt-dlp extraction for %s", target)
		}
		_ = e.limiter.Wait(context.Background())

		cmd := exec.Command("yt-dlp", "-j", "-f", "bestaudio", "--no-playlist", target)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		out, err := cmd.Output()
		if err == nil {
			output = out
			lastErr = nil
			break
		}

		if classified := classifyHelperError(stderr.String()); classified != nil {
			return music.Track{}, classified
		}
		lastErr = fmt.Errorf("yt-dlp error: %w (%s)", err, firstLine(stderr.String()))
	}
	if lastErr != nil {
		return music.Track{}, lastErr
	}

	var info ytdlpInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return music.Track{}, fmt.Errorf("yt-dlp json error: %w", err)
	}

	link := strings.TrimSpace(info.URL)
	if link == "" && len(info.Formats) > 0 {
		link = strings.TrimSpace(info.Formats[0].URL)
	}
	if link == "" {
		return music.Track{}, ErrNoStreamURL
	}

	title := info.Title
	if title == "" {
		title = unknownTitle
	}
	webpageURL := info.WebpageURL
	if webpageURL == "" {
		webpageURL = query
	}

	return music.Track{
		Title:       title,
		WebpageURL:  webpageURL,
		StreamURL:   link,
		RequestedBy: requestedBy,
	}, nil
}

// classifyHelperError picks out failures of the tooling itself so the caller
// can tell the user to fix their install rather than retry the query.
func classifyHelperError(stderr string) error {
	msg := strings.ToLower(stderr)
	for _, marker := range []string{"javascript runtime", "challenge", "signature"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: challenge solving failed, install a JS runtime (deno/node)", ErrHelperUnavailable)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
