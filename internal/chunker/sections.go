package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/okandolu/hae-gpt/internal/models"
)

var (
	sectionRe  = regexp.MustCompile(models.SectionRegex)
	numberedRe = regexp.MustCompile(models.NumberedHeading)
)

// maxHeadingLen bounds how long a line may be and still count as a heading.
const maxHeadingLen = 90

type sectionMark struct {
	offset int
	title  string
}

// sectionLabels maps rune offsets of one page to the heading in force there.
type sectionLabels struct {
	start string
	marks []sectionMark
}

// at returns the section label for the chunk starting at offset.
func (l *sectionLabels) at(offset int) string {
	if l == nil {
		return ""
	}
	label := l.start
	for _, m := range l.marks {
		if m.offset > offset {
			break
		}
		label = m.title
	}
	return label
}

// sectionTracker follows headings line by line across the pages of one
// document. The heading last seen on a page carries over to the next.
type sectionTracker struct {
	current string
}

func (t *sectionTracker) scan(text string) *sectionLabels {
	labels := &sectionLabels{start: t.current}

	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if title, ok := headingTitle(line); ok {
			labels.marks = append(labels.marks, sectionMark{offset: offset, title: title})
			t.current = title
		}
		offset += utf8.RuneCountInString(line) + 1
	}
	return labels
}

// SectionOf returns the last heading found in text, if any.
func SectionOf(text string) string {
	var t sectionTracker
	t.scan(text)
	return t.current
}

func headingTitle(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) > maxHeadingLen {
		return "", false
	}
	if sectionRe.MatchString(strings.ToLower(line)) || numberedRe.MatchString(line) {
		return line, true
	}
	return "", false
}
