// Package reconcile implements the suffix-tag protocol: extracting the
// structured data block the model is instructed to append to every response,
// validating it against the loaded schema, and merging the validated facts
// into the session.
//
// The producer is an untrusted text generator, so extraction is tolerant by
// contract: a malformed or missing suffix block yields an empty TagSet and a
// turn with zero mutations, never an error.
package reconcile

import (
	"regexp"
	"strconv"
	"strings"
)

// Binding pairs a unit name with a reported location string.
type Binding struct {
	Unit     string
	Location string
}

// TagSet is the typed result of suffix-tag extraction. Zero value means "no
// recognized tags".
type TagSet struct {
	Bindings    []Binding // from [LOC_DATA: UNIT=Loc, ...], in report order
	Objectives  []string  // from [OBJ_DATA: id=TRUE]
	ItemsMet    []string  // from [ITEM_MET: text] and [VALIDATE: text]
	ValidateAll bool      // from [VALIDATE: ALL]
	Score       *float64  // from [SCORE: 0.x], last occurrence wins
}

var (
	locPattern      = regexp.MustCompile(`\[LOC_DATA:\s*([^\]]*)\]`)
	objPattern      = regexp.MustCompile(`\[OBJ_DATA:\s*(\w+)\s*=\s*TRUE\]`)
	validatePattern = regexp.MustCompile(`\[VALIDATE:\s*([^\]]+)\]`)
	itemPattern     = regexp.MustCompile(`\[ITEM_MET:\s*([^\]]+)\]`)
	scorePattern    = regexp.MustCompile(`\[SCORE:\s*(-?\d+(?:\.\d+)?)\]`)

	// stripPattern removes every recognized tag type from display text.
	stripPattern = regexp.MustCompile(`\[(?:LOC_DATA|OBJ_DATA|VALIDATE|ITEM_MET|SCORE):[^\]]*\]`)
)

// ParseTags extracts all recognized suffix tags from raw model output.
// Never fails: unparseable fragments simply contribute nothing.
func ParseTags(raw string) TagSet {
	var tags TagSet

	for _, m := range locPattern.FindAllStringSubmatch(raw, -1) {
		for _, pair := range strings.Split(m[1], ",") {
			unit, loc, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			unit = strings.TrimSpace(unit)
			loc = strings.TrimSpace(loc)
			if unit == "" || loc == "" {
				continue
			}
			tags.Bindings = append(tags.Bindings, Binding{Unit: unit, Location: loc})
		}
	}

	for _, m := range objPattern.FindAllStringSubmatch(raw, -1) {
		tags.Objectives = append(tags.Objectives, m[1])
	}

	for _, m := range validatePattern.FindAllStringSubmatch(raw, -1) {
		arg := strings.TrimSpace(m[1])
		if strings.EqualFold(arg, "ALL") {
			tags.ValidateAll = true
			continue
		}
		tags.ItemsMet = append(tags.ItemsMet, arg)
	}

	for _, m := range itemPattern.FindAllStringSubmatch(raw, -1) {
		tags.ItemsMet = append(tags.ItemsMet, strings.TrimSpace(m[1]))
	}

	for _, m := range scorePattern.FindAllStringSubmatch(raw, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		tags.Score = &v
	}

	return tags
}

// CleanText strips every recognized bracketed tag from raw text. The
// remainder is the display text.
func CleanText(raw string) string {
	return strings.TrimSpace(stripPattern.ReplaceAllString(raw, ""))
}

// SplitDialogue splits cleaned display text into per-speaker utterances.
// Segments run from each "SPEAKER:" label to the next label or end of
// string. Markdown bolding and wrapping quotes around utterances are
// removed. A speaker appearing twice keeps the later utterance.
func SplitDialogue(text string, speakers []string) map[string]string {
	if len(speakers) == 0 {
		return map[string]string{}
	}
	quoted := make([]string, len(speakers))
	for i, s := range speakers {
		quoted[i] = regexp.QuoteMeta(s)
	}
	labelPattern := regexp.MustCompile(`(?:\*\*)?(` + strings.Join(quoted, "|") + `)(?:\*\*)?:`)

	matches := labelPattern.FindAllStringSubmatchIndex(text, -1)
	segments := make(map[string]string, len(matches))
	for i, m := range matches {
		speaker := text[m[2]:m[3]]
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		segments[speaker] = cleanUtterance(text[start:end])
	}
	return segments
}

func cleanUtterance(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "**", "")
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
