package domain

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/validator"
)

// Document types accepted for identity documents.
const (
	DocumentCC       = "CC"
	DocumentTI       = "TI"
	DocumentCE       = "CE"
	DocumentPassport = "PASSPORT"
)

// ValidDocumentTypes returns the accepted document types.
func ValidDocumentTypes() []string {
	return []string{DocumentCC, DocumentTI, DocumentCE, DocumentPassport}
}

// ParseEmail trims and lower-cases raw and checks it is a well-formed address.
func ParseEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := validator.Var(email, "required,email,max=254"); err != nil {
		return "", apperrors.InvalidInput("invalid email address")
	}
	return email, nil
}

// ParseDocument validates a document number for its type and returns the
// normalised number. National documents are 6 to 15 digits; passports are
// 6 to 20 letters or digits and are upper-cased.
func ParseDocument(docType, number string) (string, error) {
	number = strings.TrimSpace(number)

	switch strings.ToUpper(docType) {
	case DocumentCC, DocumentTI, DocumentCE:
		if len(number) < 6 || len(number) > 15 || !allRunes(number, unicode.IsDigit) {
			return "", apperrors.InvalidInput(fmt.Sprintf("%s document number must be 6 to 15 digits", docType))
		}
		return number, nil
	case DocumentPassport:
		number = strings.ToUpper(number)
		alnum := func(r rune) bool { return r < unicode.MaxASCII && (unicode.IsDigit(r) || unicode.IsLetter(r)) }
		if len(number) < 6 || len(number) > 20 || !allRunes(number, alnum) {
			return "", apperrors.InvalidInput("passport number must be 6 to 20 letters or digits")
		}
		return number, nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown document type %q", docType))
	}
}

func allRunes(s string, ok func(rune) bool) bool {
	for _, r := range s {
		if !ok(r) {
			return false
		}
	}
	return true
}
