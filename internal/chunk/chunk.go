// Package chunk splits long free text into bounded, marker-aligned blocks.
package chunk

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the block length target used when none is given.
	DefaultMaxChars = 3500
	// DefaultMarker starts a new block whenever a line begins with it.
	DefaultMarker = "Question:"
)

// Splitter holds the chunking parameters. The zero value is not useful;
// use New or fill both fields.
type Splitter struct {
	MaxChars int
	// Marker forces a block boundary before any line starting with it.
	// Empty disables marker splitting.
	Marker string
}

// New returns a Splitter with the default marker.
func New(maxChars int) Splitter {
	return Splitter{MaxChars: maxChars, Marker: DefaultMarker}
}

// Split chunks text with the default marker.
func Split(text string, maxChars int) []string {
	return New(maxChars).Split(text)
}

// Split partitions text into blocks of at most MaxChars characters where
// possible. Each line counts its rune length plus one for the newline. A line
// that alone exceeds the limit becomes its own oversized block; lines are
// never cut. Whitespace-only blocks are dropped and the result is never nil.
func (s Splitter) Split(text string) []string {
	limit := s.MaxChars
	if limit <= 0 {
		limit = DefaultMaxChars
	}

	blocks := []string{}
	if strings.TrimSpace(text) == "" {
		return blocks
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")

	var buf []string
	size := 0
	flush := func() {
		if len(buf) == 0 {
			return
		}
		block := strings.Join(buf, "\n")
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, block)
		}
		buf = buf[:0]
		size = 0
	}

	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line) + 1

		if s.Marker != "" && strings.HasPrefix(line, s.Marker) {
			flush()
		} else if size+n > limit {
			flush()
		}

		buf = append(buf, line)
		size += n
	}
	flush()

	return blocks
}
