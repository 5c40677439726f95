package assessment

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// PatientIDAlphabet avoids glyphs that are easy to confuse when written by
// hand (I, O, 1, 0).
const PatientIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// PatientIDLength is the number of characters in a patient ID.
const PatientIDLength = 6

// NewPatientID returns a random patient ID.
func NewPatientID() string {
	max := big.NewInt(int64(len(PatientIDAlphabet)))
	var b strings.Builder
	b.Grow(PatientIDLength)
	for i := 0; i < PatientIDLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("read random source: %v", err))
		}
		b.WriteByte(PatientIDAlphabet[n.Int64()])
	}
	return b.String()
}

// NormalizePatientID upper-cases and trims id, then validates it.
func NormalizePatientID(id string) (string, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if err := ValidatePatientID(id); err != nil {
		return "", err
	}
	return id, nil
}

// ValidatePatientID checks that id has the expected length and alphabet.
func ValidatePatientID(id string) error {
	if len(id) != PatientIDLength {
		return fmt.Errorf("%w: patient id must be %d characters, got %d", ErrInvalidInput, PatientIDLength, len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune(PatientIDAlphabet, c) {
			return fmt.Errorf("%w: patient id contains invalid character %q", ErrInvalidInput, c)
		}
	}
	return nil
}
