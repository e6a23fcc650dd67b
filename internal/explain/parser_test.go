package explain

import (
	"errors"
	"testing"

	"why-did-it-move/internal/domain"
)

const wellFormedResponse = `SUMMARY: Apple rose 3.2% after a strong earnings beat drew heavy buying.
PRIMARY DRIVER: Quarterly earnings beat with raised guidance.
SUPPORTING FACTORS:
- Volume ran 1.8x the trailing average
- The stock outperformed the S&P 500 by 2.4 points
- Multiple premium sources covered the report
MOVE CLASSIFICATION: Moderate Increase
CONFIDENCE SCORE: 0.82
UNCERTAINTY NOTE: Intraday order flow data was not available.`

func TestParseWellFormedResponse(t *testing.T) {
	p, err := Parse(wellFormedResponse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Summary == "" || p.PrimaryDriver == "" {
		t.Fatal("expected summary and primary driver populated")
	}
	if len(p.SupportingFactors) != 3 {
		t.Fatalf("expected 3 supporting factors, got %d", len(p.SupportingFactors))
	}
	if p.SupportingFactors[0] != "Volume ran 1.8x the trailing average" {
		t.Fatalf("unexpected first factor: %q", p.SupportingFactors[0])
	}
	if p.Classification != domain.MoveModerateIncrease {
		t.Fatalf("expected Moderate Increase, got %q", p.Classification)
	}
	if p.Confidence != 0.82 {
		t.Fatalf("expected literal confidence 0.82, got %v", p.Confidence)
	}
	if p.UncertaintyNote != "Intraday order flow data was not available." {
		t.Fatalf("unexpected uncertainty note: %q", p.UncertaintyNote)
	}
}

func TestParseToleratesFormattingVariance(t *testing.T) {
	raw := `**summary:** Shares fell with the broader market.
## Primary Driver: Broad market selloff.
**SUPPORTING FACTORS**:
1. The S&P 500 fell 2.1%
2) Sector ETF declined in step
Move Classification: Moderate Decrease
confidence: 70%`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Summary != "Shares fell with the broader market." {
		t.Fatalf("unexpected summary: %q", p.Summary)
	}
	if p.PrimaryDriver != "Broad market selloff." {
		t.Fatalf("unexpected driver: %q", p.PrimaryDriver)
	}
	if len(p.SupportingFactors) != 2 {
		t.Fatalf("expected 2 factors, got %v", p.SupportingFactors)
	}
	if p.Classification != domain.MoveModerateDecrease {
		t.Fatalf("expected Moderate Decrease, got %q", p.Classification)
	}
	if p.Confidence != 0.7 {
		t.Fatalf("expected 0.7 from percent form, got %v", p.Confidence)
	}
}

func TestParseMissingConfidenceDefaults(t *testing.T) {
	raw := `SUMMARY: The stock drifted lower on light volume.
PRIMARY DRIVER: No identifiable catalyst.
MOVE CLASSIFICATION: Flat/Neutral`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Confidence != 0.5 {
		t.Fatalf("expected default 0.5, got %v", p.Confidence)
	}
	if p.UncertaintyNote == "" {
		t.Fatal("expected an uncertainty note about missing confidence")
	}
}

func TestParseClassificationSynonym(t *testing.T) {
	raw := `SUMMARY: Shares cratered after the guidance cut.
PRIMARY DRIVER: Guidance cut.
MOVE CLASSIFICATION: Sharp Drop
CONFIDENCE SCORE: 0.9`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Classification != domain.MoveStrongDecrease {
		t.Fatalf("expected synonym mapping to Strong Decrease, got %q", p.Classification)
	}
	if p.UncertaintyNote != "" {
		t.Fatalf("synonym match should not add a note, got %q", p.UncertaintyNote)
	}
}

func TestParseUnknownClassificationFallsBack(t *testing.T) {
	raw := `SUMMARY: Unclear session.
PRIMARY DRIVER: Mixed signals across the tape.
MOVE CLASSIFICATION: Bananas
CONFIDENCE SCORE: 0.6`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Classification != domain.MoveMixedVolatile {
		t.Fatalf("expected Mixed/Volatile fallback, got %q", p.Classification)
	}
	if p.UncertaintyNote == "" {
		t.Fatal("expected an uncertainty note about the unknown label")
	}
}

func TestParseMissingRequiredFields(t *testing.T) {
	cases := []string{
		"",
		"The stock went up because of earnings.",
		"PRIMARY DRIVER: Earnings beat.",
		"SUMMARY: Shares rose on earnings.",
		"DRIVER ANALYSIS: Earnings beat.\nOVERVIEW: Shares rose.",
	}
	for _, raw := range cases {
		if _, err := Parse(raw); !errors.Is(err, domain.ErrMissingRequiredField) {
			t.Fatalf("expected ErrMissingRequiredField for %q, got %v", raw, err)
		}
	}
}

func TestParseConfidenceClamped(t *testing.T) {
	raw := `SUMMARY: Big move.
PRIMARY DRIVER: Earnings.
CONFIDENCE SCORE: 140%`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Confidence != 1 {
		t.Fatalf("expected clamp to 1, got %v", p.Confidence)
	}
}

func TestParseIgnoresUnknownHeadings(t *testing.T) {
	raw := `RISK DISCLAIMER: none.
SUMMARY: Shares rallied on an upgrade.
PRIMARY DRIVER: Analyst upgrade.
INTERNAL NOTES: scratch text.
CONFIDENCE SCORE: 0.75`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Summary != "Shares rallied on an upgrade." {
		t.Fatalf("unknown heading bled into summary: %q", p.Summary)
	}
}
