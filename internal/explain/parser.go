package explain

import (
	"fmt"
	"strconv"
	"strings"

	"why-did-it-move/internal/domain"
)

// Parsed is the structured form of one model response.
type Parsed struct {
	Summary           string
	PrimaryDriver     string
	SupportingFactors []string
	Classification    domain.MoveClassification
	Confidence        float64
	UncertaintyNote   string
}

const (
	noteNoConfidence      = "Confidence was not supplied by the model; defaulted to 0.5."
	noteUnknownClass      = "Model returned an unrecognized classification; defaulted to Mixed/Volatile."
	noteMissingField      = "Model response was missing required fields; no explanation available."
	noteMissingClassLabel = "Model did not supply a classification; defaulted to Mixed/Volatile."
)

type fieldKey int

const (
	fieldSummary fieldKey = iota
	fieldPrimaryDriver
	fieldSupporting
	fieldClassification
	fieldConfidence
	fieldUncertainty
)

// headings maps the normalized heading tokens the parser accepts to fields.
// Anything outside this table is body text, never a field anchor.
var headings = map[string]fieldKey{
	"SUMMARY":             fieldSummary,
	"EXPLANATION":         fieldSummary,
	"PRIMARY DRIVER":      fieldPrimaryDriver,
	"SUPPORTING FACTORS":  fieldSupporting,
	"MOVE CLASSIFICATION": fieldClassification,
	"CLASSIFICATION":      fieldClassification,
	"CONFIDENCE SCORE":    fieldConfidence,
	"CONFIDENCE":          fieldConfidence,
	"UNCERTAINTY NOTE":    fieldUncertainty,
}

// classSynonyms maps near-miss labels onto the closed classification set.
var classSynonyms = map[string]domain.MoveClassification{
	"sharp increase":    domain.MoveStrongIncrease,
	"strong rise":       domain.MoveStrongIncrease,
	"large increase":    domain.MoveStrongIncrease,
	"moderate rise":     domain.MoveModerateIncrease,
	"slight increase":   domain.MoveModerateIncrease,
	"modest increase":   domain.MoveModerateIncrease,
	"flat":              domain.MoveFlatNeutral,
	"neutral":           domain.MoveFlatNeutral,
	"sideways":          domain.MoveFlatNeutral,
	"unchanged":         domain.MoveFlatNeutral,
	"moderate decline":  domain.MoveModerateDecrease,
	"moderate drop":     domain.MoveModerateDecrease,
	"slight decrease":   domain.MoveModerateDecrease,
	"strong decline":    domain.MoveStrongDecrease,
	"sharp decrease":    domain.MoveStrongDecrease,
	"sharp drop":        domain.MoveStrongDecrease,
	"large decrease":    domain.MoveStrongDecrease,
	"mixed":             domain.MoveMixedVolatile,
	"volatile":          domain.MoveMixedVolatile,
	"choppy":            domain.MoveMixedVolatile,
	"mixed or volatile": domain.MoveMixedVolatile,
}

// Parse extracts the labeled fields from a raw model response. Heading case,
// surrounding punctuation, and list markers are tolerated; unknown headings
// are treated as body text. A response without both a summary and a primary
// driver fails with ErrMissingRequiredField.
func Parse(raw string) (Parsed, error) {
	sections := make(map[fieldKey][]string)
	current := fieldKey(-1)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if key, rest, ok := matchHeading(line); ok {
			current = key
			if rest != "" {
				sections[key] = append(sections[key], rest)
			}
			continue
		}
		if current >= 0 {
			sections[current] = append(sections[current], line)
		}
	}

	summary := strings.Join(sections[fieldSummary], " ")
	driver := strings.Join(sections[fieldPrimaryDriver], " ")
	if summary == "" || driver == "" {
		return Parsed{}, fmt.Errorf("parse model response: %w", domain.ErrMissingRequiredField)
	}

	p := Parsed{
		Summary:           summary,
		PrimaryDriver:     driver,
		SupportingFactors: parseFactors(sections[fieldSupporting]),
		UncertaintyNote:   strings.Join(sections[fieldUncertainty], " "),
	}

	p.Classification = parseClassification(strings.Join(sections[fieldClassification], " "), &p.UncertaintyNote)
	p.Confidence = parseConfidence(strings.Join(sections[fieldConfidence], " "), &p.UncertaintyNote)
	return p, nil
}

// matchHeading reports whether a line anchors a known field, returning any
// inline content after the heading's colon.
func matchHeading(line string) (fieldKey, string, bool) {
	stripped := strings.TrimLeft(line, "#*- \t")
	stripped = strings.TrimSpace(stripped)

	head, rest := stripped, ""
	if idx := strings.Index(stripped, ":"); idx >= 0 {
		head = stripped[:idx]
		rest = strings.TrimSpace(stripped[idx+1:])
	}
	head = strings.ToUpper(strings.TrimSpace(strings.Trim(head, "*_")))

	key, ok := headings[head]
	if !ok {
		return 0, "", false
	}
	return key, strings.TrimSpace(strings.Trim(rest, "*_")), true
}

func parseFactors(lines []string) []string {
	var factors []string
	for _, line := range lines {
		item := strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		// Numbered list markers like "1." or "2)".
		if len(item) > 1 && (item[1] == '.' || item[1] == ')') && item[0] >= '0' && item[0] <= '9' {
			item = strings.TrimSpace(item[2:])
		}
		if item != "" {
			factors = append(factors, item)
		}
	}
	return factors
}

func parseClassification(label string, note *string) domain.MoveClassification {
	label = strings.TrimSpace(strings.Trim(label, ".*_\"'"))
	if label == "" {
		appendNote(note, noteMissingClassLabel)
		return domain.MoveMixedVolatile
	}
	for _, c := range domain.Classifications {
		if strings.EqualFold(label, string(c)) {
			return c
		}
	}
	if c, ok := classSynonyms[strings.ToLower(label)]; ok {
		return c
	}
	appendNote(note, noteUnknownClass)
	return domain.MoveMixedVolatile
}

func parseConfidence(text string, note *string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		appendNote(note, noteNoConfidence)
		return 0.5
	}
	token := firstNumericToken(text)
	if token == "" {
		appendNote(note, noteNoConfidence)
		return 0.5
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		appendNote(note, noteNoConfidence)
		return 0.5
	}
	// "85%" and bare "85" both mean 0.85.
	if strings.Contains(text, "%") || v > 1 {
		v /= 100
	}
	return clamp(v, 0, 1)
}

func firstNumericToken(text string) string {
	start := -1
	for i, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return text[start:i]
		}
	}
	if start >= 0 {
		return text[start:]
	}
	return ""
}

func appendNote(note *string, msg string) {
	if *note == "" {
		*note = msg
		return
	}
	*note = *note + " " + msg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
