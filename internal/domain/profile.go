package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/mapadna/oracle-funnel-go/pkg/errors"
)

const (
	BirthDateLayout = "2006-01-02"

	minNameWords  = 2
	minWordLength = 2
	maxRunRepeat  = 3
	earliestBirth = "1900-01-01"
	latestBirth   = "2024-12-31"
)

// FunnelProfile holds everything a visitor supplies across the quiz steps.
// It lives inside a funnel session and is never persisted beyond it.
type FunnelProfile struct {
	FullName         string   `json:"name"`
	BirthDate        string   `json:"birth_date"`
	Question1        string   `json:"question1"`
	Question2        string   `json:"question2"`
	ContactHandle    string   `json:"whatsapp,omitempty"`
	Points           int      `json:"points"`
	MonthlyPotential int      `json:"monthly_potential"`
	Achievements     []string `json:"achievements"`
	CurrentStep      int      `json:"current_step"`
}

// SurveyAnswers returns the ordered free-text answers.
func (p *FunnelProfile) SurveyAnswers() []string {
	return []string{p.Question1, p.Question2}
}

// Complete reports whether all fields required for oracle generation are present.
func (p *FunnelProfile) Complete() bool {
	return p.FullName != "" && p.BirthDate != "" && p.Question1 != "" && p.Question2 != ""
}

// Validate checks the required fields for oracle generation. The HTTP layer
// validates on input already; the pipeline calls this again defensively.
func (p *FunnelProfile) Validate() error {
	if err := ValidateFullName(p.FullName); err != nil {
		return err
	}
	if err := ValidateBirthDate(p.BirthDate); err != nil {
		return err
	}
	if strings.TrimSpace(p.Question1) == "" {
		return errors.NewValidationError("first survey answer is required", "question1", p.Question1)
	}
	if strings.TrimSpace(p.Question2) == "" {
		return errors.NewValidationError("second survey answer is required", "question2", p.Question2)
	}
	return nil
}

// ValidateFullName enforces the name rules: at least two words of two or more
// letters each, letters and spaces only, and no letter repeated more than
// three times in a row.
func ValidateFullName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.NewValidationError("name is required", "name", name)
	}

	for _, r := range trimmed {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return errors.NewValidationError("name must contain only letters and spaces", "name", name)
		}
	}

	words := strings.Fields(trimmed)
	if len(words) < minNameWords {
		return errors.NewValidationError("full name must have at least two words", "name", name)
	}
	for _, word := range words {
		if len([]rune(word)) < minWordLength {
			return errors.NewValidationError("each name word must have at least two letters", "name", name)
		}
	}

	run := 1
	var prev rune
	for i, r := range trimmed {
		lower := unicode.ToLower(r)
		if i > 0 && lower == prev {
			run++
			if run > maxRunRepeat {
				return errors.NewValidationError("name has excessive character repetition", "name", name)
			}
		} else {
			run = 1
		}
		prev = lower
	}

	return nil
}

// ValidateBirthDate enforces the YYYY-MM-DD format and the accepted range.
func ValidateBirthDate(birthDate string) error {
	if birthDate == "" {
		return errors.NewValidationError("birth date is required", "birth_date", birthDate)
	}

	parsed, err := time.Parse(BirthDateLayout, birthDate)
	if err != nil {
		return errors.NewValidationError("birth date must be YYYY-MM-DD", "birth_date", birthDate)
	}

	earliest, _ := time.Parse(BirthDateLayout, earliestBirth)
	latest, _ := time.Parse(BirthDateLayout, latestBirth)
	if parsed.Before(earliest) || parsed.After(latest) {
		return errors.NewValidationError("birth date out of accepted range", "birth_date", birthDate)
	}

	return nil
}
