package pipeline

import (
	"regexp"
	"strings"

	"github.com/copwatch-uk/copwatch/internal/detect"
)

// badgePattern matches shoulder-number style text: an optional short letter
// prefix followed by digits, optionally a trailing letter. "AB 1234",
// "PS4471", "U2517".
var badgePattern = regexp.MustCompile(`^[A-Z]{0,4}\s?\d{2,6}[A-Z]?$`)

// namePattern matches name-tag style text: letters with the usual name
// punctuation, at least two characters.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z'.\- ]+$`)

// uniformWords are text fragments that appear on uniforms but are neither
// badges nor names.
var uniformWords = map[string]bool{
	"POLICE":       true,
	"CONSTABULARY": true,
	"METROPOLITAN": true,
	"SERGEANT":     true,
	"INSPECTOR":    true,
	"COMMUNITY":    true,
	"SUPPORT":      true,
	"OFFICER":      true,
	"LIAISON":      true,
	"MEDIC":        true,
	"EVIDENCE":     true,
	"GATHERER":     true,
}

// bestBadgeCandidate returns the highest-confidence OCR fragment that looks
// like a badge or shoulder number.
func bestBadgeCandidate(regions []detect.TextRegion) (string, float64) {
	var best string
	var bestConf float64
	for _, r := range regions {
		text := strings.ToUpper(strings.TrimSpace(r.Text))
		if text == "" || !badgePattern.MatchString(text) {
			continue
		}
		if r.Confidence > bestConf {
			best = text
			bestConf = r.Confidence
		}
	}
	return best, bestConf
}

// bestNameCandidate returns the highest-confidence OCR fragment that looks
// like a name tag, skipping generic uniform wording.
func bestNameCandidate(regions []detect.TextRegion) (string, float64) {
	var best string
	var bestConf float64
	for _, r := range regions {
		text := strings.TrimSpace(r.Text)
		if len(text) < 2 || !namePattern.MatchString(text) {
			continue
		}
		if isUniformWording(text) {
			continue
		}
		if r.Confidence > bestConf {
			best = text
			bestConf = r.Confidence
		}
	}
	return best, bestConf
}

func isUniformWording(text string) bool {
	for _, word := range strings.Fields(strings.ToUpper(text)) {
		if !uniformWords[word] {
			return false
		}
	}
	return true
}
