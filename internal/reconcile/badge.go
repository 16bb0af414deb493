package reconcile

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed forces.yaml
var forcesYAML []byte

// Confidence assigned to rule-based inferences. Rules are deterministic but
// shoulder-number conventions vary between forces, so they never reach
// vision-level confidence.
const (
	rankRuleConfidence        = 0.8
	forceRuleConfidence       = 0.6
	singleLetterForceRuleConf = 0.45

	// minDigitsAfterSingleLetter guards against reading short numeric badges
	// like "M12" as a force match.
	minDigitsAfterSingleLetter = 4
)

type badgeRules struct {
	Forces       map[string]string `yaml:"forces"`
	RankPrefixes map[string]string `yaml:"rank_prefixes"`
}

var rules = loadBadgeRules()

func loadBadgeRules() *badgeRules {
	var r badgeRules
	if err := yaml.Unmarshal(forcesYAML, &r); err != nil {
		// Embedded file, so this cannot happen outside a broken build.
		panic("failed to unmarshal embedded forces.yaml: " + err.Error())
	}
	return &r
}

// BadgeInference is the rule-based reading of a badge / shoulder-number text.
type BadgeInference struct {
	Force           string
	ForceConfidence float64
	Rank            string
	RankConfidence  float64
	Indicators      []string
}

// prefixesByLength returns map keys sorted longest first so that longer
// prefixes win over their own substrings (PSNI before PS).
func prefixesByLength(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// InferFromBadge derives force and rank from a badge text using the embedded
// prefix tables. Rank prefixes are checked first and are explicitly excluded
// from force matching: "PS1234" reads as Sergeant, never as a force code.
func InferFromBadge(badgeText string) *BadgeInference {
	inference := &BadgeInference{}
	text := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(badgeText), " ", ""))
	if text == "" {
		return inference
	}

	for _, prefix := range prefixesByLength(rules.RankPrefixes) {
		rest, ok := strings.CutPrefix(text, prefix)
		if !ok || !allDigits(rest) {
			continue
		}
		inference.Rank = rules.RankPrefixes[prefix]
		inference.RankConfidence = rankRuleConfidence
		inference.Indicators = append(inference.Indicators,
			fmt.Sprintf("badge prefix %q denotes rank %s", prefix, inference.Rank))
		return inference
	}

	for _, prefix := range prefixesByLength(rules.Forces) {
		if _, isRank := rules.RankPrefixes[prefix]; isRank {
			continue
		}
		rest, ok := strings.CutPrefix(text, prefix)
		if !ok || !allDigits(rest) {
			continue
		}
		confidence := forceRuleConfidence
		if len(prefix) == 1 {
			if len(rest) < minDigitsAfterSingleLetter {
				continue
			}
			confidence = singleLetterForceRuleConf
		}
		inference.Force = rules.Forces[prefix]
		inference.ForceConfidence = confidence
		inference.Indicators = append(inference.Indicators,
			fmt.Sprintf("badge prefix %q maps to %s", prefix, inference.Force))
		return inference
	}

	return inference
}
