// Package playlist parses an HLS media playlist into an ordered
// internal/model.SegmentPlan via line-oriented scanning, narrowed to
// the four directives the acquisition pipeline needs: media sequence,
// key URI, segment duration, and segment URLs.
package playlist

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/kurogo/kurogo/internal/kind"
	"github.com/kurogo/kurogo/internal/model"
)

// Parse reads a raw media playlist body and the URL it was fetched
// from (used to resolve relative segment URLs), returning a validated
// SegmentPlan.
func Parse(body []byte, playlistURL string) (model.SegmentPlan, error) {
	var plan model.SegmentPlan
	var pendingDuration float64
	var total float64

	base := baseURL(playlistURL)

	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			seqStr := strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:")
			seq, err := strconv.ParseInt(strings.TrimSpace(seqStr), 10, 64)
			if err != nil {
				return model.SegmentPlan{}, malformed("bad media sequence: " + seqStr)
			}
			plan.MediaSequence = seq
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			uri := extractAttr(line, "URI")
			if uri != "" {
				plan.KeyURI = resolveURL(base, uri)
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			infLine := strings.TrimPrefix(line, "#EXTINF:")
			parts := strings.SplitN(infLine, ",", 2)
			if len(parts) > 0 {
				d, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
				if err == nil {
					pendingDuration = d
				}
			}
		case strings.HasPrefix(line, "#"):
			continue
		default:
			segURL := resolveURL(base, line)
			plan.Segments = append(plan.Segments, segURL)
			total += pendingDuration
			pendingDuration = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return model.SegmentPlan{}, malformed(err.Error())
	}

	plan.DurationSeconds = total

	if err := plan.Validate(); err != nil {
		return model.SegmentPlan{}, malformed(err.Error())
	}
	return plan, nil
}

func malformed(msg string) error {
	return kind.New(kind.MalformedPlaylist, "", 0, "playlist", errNew(msg))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func errNew(msg string) error { return simpleErr(msg) }

// extractAttr pulls ATTR="value" out of a tag line.
func extractAttr(line, attr string) string {
	key := attr + "=\""
	idx := strings.Index(line, key)
	if idx < 0 {
		return ""
	}
	rest := line[idx+len(key):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func baseURL(u string) string {
	if idx := strings.LastIndex(u, "/"); idx != -1 {
		return u[:idx+1]
	}
	return u + "/"
}

func resolveURL(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return base + ref
}
