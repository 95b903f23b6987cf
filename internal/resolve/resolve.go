// Package resolve implements the stream resolution pipeline:
// scraping a play page for candidate streams, selecting the right one
// for a caller's StreamChoice, and — when the page only exposes an
// obfuscated packer script — unpacking it in a sandboxed goja runtime
// to recover the playlist URL.
package resolve

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"

	"github.com/kurogo/kurogo/internal/fetch"
	"github.com/kurogo/kurogo/internal/kind"
	"github.com/kurogo/kurogo/internal/logging"
	"github.com/kurogo/kurogo/internal/model"
)

const packerEvalTimeout = 5 * time.Second

var sourceRe = regexp.MustCompile(`source\s*=\s*['"]([^'"]+\.m3u8[^'"]*)['"]`)

// Candidates scrapes a play page for every non-AV1 <button data-src
// data-resolution data-audio data-av1="0"> row by walking a
// goquery.Document with a single selector. AV1 candidates are excluded
// from the pool entirely rather than merely tagged, since the muxer
// downstream expects an H.264/AAC stream copy.
func Candidates(ctx context.Context, client *fetch.Client, playPageURL string) ([]model.StreamCandidate, error) {
	body, err := client.Get(ctx, playPageURL, "")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, kind.New(kind.NoStream, "", 0, "resolve", err)
	}

	var candidates []model.StreamCandidate
	doc.Find(`button[data-src][data-av1="0"]`).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("data-src")
		if !ok || src == "" {
			return
		}
		res, _ := strconv.Atoi(s.AttrOr("data-resolution", "0"))
		candidates = append(candidates, model.StreamCandidate{
			Resolution: res,
			Audio:      s.AttrOr("data-audio", ""),
			URL:        src,
			AV1:        false,
		})
	})

	if len(candidates) == 0 {
		return nil, kind.New(kind.NoStream, "", 0, "resolve", fmt.Errorf("no stream candidates on play page"))
	}
	return candidates, nil
}

// Select picks the candidate matching choice: candidates are sorted by
// resolution descending, filtered by audio tag (falling back to the
// unfiltered set with a downgrade log if the tag matches nothing), then
// picked by quality=best or the highest candidate at or below the
// requested height, logging a downgrade if nothing meets the ceiling.
func Select(candidates []model.StreamCandidate, choice model.StreamChoice) (model.StreamCandidate, error) {
	if len(candidates) == 0 {
		return model.StreamCandidate{}, kind.New(kind.NoStream, "", 0, "resolve", fmt.Errorf("no candidates"))
	}

	sorted := make([]model.StreamCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Resolution > sorted[j].Resolution
	})

	pool := sorted
	if choice.Audio != "" {
		filtered := filterAudio(sorted, choice.Audio)
		if len(filtered) > 0 {
			pool = filtered
		} else {
			logging.Logger.Warn("no candidate matches requested audio, falling back to all audio tracks", "audio", choice.Audio)
		}
	}

	if choice.IsBest() {
		return pool[0], nil
	}

	for _, c := range pool {
		if c.Resolution <= choice.Quality {
			return c, nil
		}
	}

	logging.Logger.Warn("no candidate at or below requested quality, downgrading to lowest available",
		"requested", choice.Quality, "selected", pool[len(pool)-1].Resolution)
	return pool[len(pool)-1], nil
}

func filterAudio(candidates []model.StreamCandidate, audio string) []model.StreamCandidate {
	var out []model.StreamCandidate
	for _, c := range candidates {
		if c.Audio == audio {
			out = append(out, c)
		}
	}
	return out
}

// FindPackerScript scans an HTML document body for the first <script>
// tag whose text contains "eval(" — the obfuscated packer payload a
// play page's data-src button actually points at — and returns its
// text for UnpackPlaylistURL.
func FindPackerScript(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", kind.New(kind.ScriptEval, "", 0, "resolve", err)
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, "eval(") {
			script = text
			return false
		}
		return true
	})

	if script == "" {
		return "", kind.New(kind.ScriptEval, "", 0, "resolve", fmt.Errorf("no packer script found on stream page"))
	}
	return script, nil
}

// UnpackPlaylistURL evaluates an obfuscated packer script in a
// sandboxed goja runtime with no registered globals beyond console, and
// extracts the m3u8 URL it assigns to `source`. The evaluation is
// interrupted if it exceeds packerEvalTimeout.
func UnpackPlaylistURL(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, packerEvalTimeout)
	defer cancel()

	vm := goja.New()
	_ = vm.Set("console", map[string]interface{}{
		"log": func(goja.FunctionCall) goja.Value { return goja.Undefined() },
	})

	type outcome struct {
		val goja.Value
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		v, err := vm.RunString(script)
		done <- outcome{val: v, err: err}
	}()

	select {
	case <-ctx.Done():
		vm.Interrupt("evaluation timed out")
		return "", kind.New(kind.ScriptEval, "", 0, "resolve", fmt.Errorf("packer evaluation timed out after %s", packerEvalTimeout))
	case out := <-done:
		if out.err != nil {
			return "", kind.New(kind.ScriptEval, "", 0, "resolve", out.err)
		}
	}

	if sourceVal := vm.Get("source"); sourceVal != nil && !goja.IsUndefined(sourceVal) {
		if s := sourceVal.String(); strings.Contains(s, ".m3u8") {
			return s, nil
		}
	}

	// No global `source` holds an m3u8 URL; fall back to a regex pass
	// over the script text as given. This pass sees the packed source,
	// not the output of evaluating it.
	if match := sourceRe.FindStringSubmatch(script); match != nil {
		return match[1], nil
	}

	return "", kind.New(kind.ScriptEval, "", 0, "resolve", fmt.Errorf("no m3u8 source found after unpacking"))
}
