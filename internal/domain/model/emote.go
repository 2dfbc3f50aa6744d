package model

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	mimeGIF = "image/gif"
	mimePNG = "image/png"
)

// EmoteImage is one rendition of an emote hosted on the 7TV CDN.
type EmoteImage struct {
	URL        string `json:"url"`
	MIME       string `json:"mime"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameCount int    `json:"frame_count"`
	// Scale is the CDN size multiplier (1-4); 0 when not reported.
	Scale int `json:"scale"`
}

// IsAnimated reports whether the image has more than one frame.
func (i EmoteImage) IsAnimated() bool {
	return i.FrameCount > 1
}

// Emote is a 7TV emote and its available renditions.
type Emote struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Images []EmoteImage `json:"images"`
}

// IsAnimated reports whether any rendition of the emote is animated.
func (e Emote) IsAnimated() bool {
	for _, img := range e.Images {
		if img.IsAnimated() {
			return true
		}
	}
	return false
}

// BestImage selects the rendition to convert: animated renditions are
// preferred, then GIFs by (scale, width, height), then the largest image.
func (e Emote) BestImage() (EmoteImage, bool) {
	if len(e.Images) == 0 {
		return EmoteImage{}, false
	}

	var candidates []EmoteImage
	for _, img := range e.Images {
		if img.IsAnimated() {
			candidates = append(candidates, img)
		}
	}
	if len(candidates) == 0 {
		candidates = e.Images
	}

	var best EmoteImage
	found := false
	for _, img := range candidates {
		if img.MIME != mimeGIF {
			continue
		}
		if !found || greaterGIF(img, best) {
			best, found = img, true
		}
	}
	if found {
		return best, true
	}

	best = candidates[0]
	for _, img := range candidates[1:] {
		if img.Width > best.Width || (img.Width == best.Width && img.Height > best.Height) {
			best = img
		}
	}
	return best, true
}

func greaterGIF(a, b EmoteImage) bool {
	if a.Scale != b.Scale {
		return a.Scale > b.Scale
	}
	if a.Width != b.Width {
		return a.Width > b.Width
	}
	return a.Height > b.Height
}

// StaticPNG returns the 4x PNG rendition, or the widest PNG if there is no 4x.
func (e Emote) StaticPNG() (EmoteImage, bool) {
	var widest EmoteImage
	found := false
	for _, img := range e.Images {
		if img.MIME != mimePNG {
			continue
		}
		if img.Scale == 4 {
			return img, true
		}
		if !found || img.Width > widest.Width {
			widest, found = img, true
		}
	}
	return widest, found
}

// SearchPage is one page of emote search results.
type SearchPage struct {
	Emotes     []Emote `json:"emotes"`
	Page       int     `json:"page"`
	PageCount  int     `json:"page_count"`
	TotalCount int     `json:"total_count"`
}

// ExtractEmoteID returns the path segment following "emote" in a 7TV CDN
// URL, e.g. https://cdn.7tv.app/emote/01F6MQ33FG000FFJ97ZB8MWV52/4x.avif.
// When no alphanumeric ID is present a random hex ID is returned instead.
func ExtractEmoteID(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		var parts []string
		for _, p := range strings.Split(u.Path, "/") {
			if p != "" {
				parts = append(parts, p)
			}
		}
		for i, p := range parts {
			if p != "emote" {
				continue
			}
			if i+1 < len(parts) && isAlnum(parts[i+1]) {
				return parts[i+1]
			}
			break
		}
	}

	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
