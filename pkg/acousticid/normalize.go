package acousticid

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/himanishpuri/AcousticID/pkg/acousticid/lookup"
	"github.com/himanishpuri/AcousticID/pkg/models"
)

// Sentinels used in place of missing metadata.
const (
	UnknownTitle       = "Título desconocido"
	UnknownArtist      = "Artista desconocido"
	UnknownAlbum       = "Álbum desconocido"
	UnknownReleaseDate = "Desconocido"

	// DefaultScore is assigned to matches the service did not score.
	DefaultScore = 0.7
)

const (
	spotifySearchURL = "https://open.spotify.com/search/%s"
	appleSearchURL   = "https://music.apple.com/search?term=%s"
	youtubeSearchURL = "https://www.youtube.com/results?search_query=%s"
)

// Normalize maps raw lookup results to track candidates. It is a pure
// function: results are emitted in input order, candidates without a
// recording are skipped, and scores never reorder the output.
func Normalize(results []lookup.Result) []models.TrackCandidate {
	out := make([]models.TrackCandidate, 0, len(results))

	for i, res := range results {
		if len(res.Recordings) == 0 {
			continue
		}
		rec := res.Recordings[0]

		title := rec.Title
		artist := firstArtist(rec)

		c := models.TrackCandidate{
			ID:             rec.ID,
			Score:          normalizeScore(res.Score),
			Title:          orDefault(title, UnknownTitle),
			Artist:         orDefault(artist, UnknownArtist),
			Album:          UnknownAlbum,
			ReleaseDate:    UnknownReleaseDate,
			StreamingLinks: StreamingLinks(title, artist),
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("recording-%d", i)
		}

		if len(rec.Releases) > 0 {
			rel := rec.Releases[0]
			c.Album = orDefault(rel.Title, UnknownAlbum)
			if rel.Date != nil && rel.Date.Year != 0 {
				c.ReleaseDate = strconv.Itoa(rel.Date.Year)
			}
		}

		out = append(out, c)
	}

	return out
}

// StreamingLinks builds search links for "{title} {artist}". Empty parts are
// left out rather than replaced by the unknown sentinels.
func StreamingLinks(title, artist string) models.StreamingLinks {
	term := encodeURIComponent(strings.TrimSpace(title + " " + artist))
	return models.StreamingLinks{
		Spotify: fmt.Sprintf(spotifySearchURL, term),
		Apple:   fmt.Sprintf(appleSearchURL, term),
		YouTube: fmt.Sprintf(youtubeSearchURL, term),
	}
}

func firstArtist(rec lookup.Recording) string {
	if len(rec.Artists) == 0 {
		return ""
	}
	return rec.Artists[0].Name
}

// normalizeScore rounds to two decimals. Missing scores, and scores that
// round to zero, fall back to DefaultScore.
func normalizeScore(score *float64) float64 {
	if score == nil {
		return DefaultScore
	}
	rounded := math.Round(*score*100) / 100
	if rounded == 0 || math.IsNaN(rounded) {
		return DefaultScore
	}
	return rounded
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// encodeURIComponent escapes s the way browsers do for a URI component:
// spaces become %20 and !'()* stay literal.
func encodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	return strings.NewReplacer(
		"+", "%20",
		"%21", "!",
		"%27", "'",
		"%28", "(",
		"%29", ")",
		"%2A", "*",
	).Replace(escaped)
}
