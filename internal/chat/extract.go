package chat

import (
	"regexp"
	"strings"

	"github.com/underla/helpdesk/internal/domain"
)

var (
	emailPattern = regexp.MustCompile(`(?i)[\w.-]+@[\w.-]+\.\w+`)

	// Phone numbers in the common formats visitors paste: optional country
	// code, optional parentheses, separators between groups.
	phonePattern = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}`)

	nonDigitPattern = regexp.MustCompile(`\D`)

	// "me llamo Ana García", "soy Pedro", "mi nombre es María"
	introducedNamePattern = regexp.MustCompile(`(?i)(?:me llamo|soy|mi nombre es)\s+([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)?)`)

	// A message that is nothing but one or two capitalized words is taken
	// as a bare name reply ("Ana", "Ana García").
	bareNamePattern = regexp.MustCompile(`^([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+(?:\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)?)$`)
)

// ExtractInfo pulls contact fields out of a visitor message and merges them
// over current. Fields already collected are never erased; a name already on
// file is never replaced by a new guess.
func ExtractInfo(message string, current domain.CollectedInfo) domain.CollectedInfo {
	out := current

	if m := emailPattern.FindString(message); m != "" {
		out.Email = strings.ToLower(m)
	}

	if m := phonePattern.FindString(message); m != "" {
		if len(nonDigitPattern.ReplaceAllString(m, "")) >= 8 {
			out.Phone = m
		}
	}

	if current.Name == "" {
		if m := introducedNamePattern.FindStringSubmatch(message); m != nil {
			out.Name = strings.TrimSpace(m[1])
		} else if m := bareNamePattern.FindStringSubmatch(strings.TrimSpace(message)); m != nil {
			out.Name = strings.TrimSpace(m[1])
		}
	}

	return out
}

// looksLikeBareName reports whether the message is nothing but a name, so it
// should not be mistaken for a consultation reason.
func looksLikeBareName(message string) bool {
	return bareNamePattern.MatchString(strings.TrimSpace(message))
}

// captureReason treats the message as the consultation reason when no reason
// is known yet and the message reads like an explanation rather than a name
// or an email.
func captureReason(message string, info domain.CollectedInfo) domain.CollectedInfo {
	if info.Reason != "" {
		return info
	}
	if len([]rune(message)) <= 5 || strings.Contains(message, "@") {
		return info
	}
	if looksLikeBareName(message) {
		return info
	}
	info.Reason = message
	return info
}
