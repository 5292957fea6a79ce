package credential

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
)

// Credential is what a terminal presents for a student. Either factor may
// be empty.
type Credential struct {
	NFCTagID        string
	BiometricSample []byte
}

// Empty reports whether no factor was supplied.
func (c Credential) Empty() bool {
	return c.NFCTagID == "" && len(c.BiometricSample) == 0
}

// Store supplies the stored reference credentials.
type Store interface {
	GetNFCTag(ctx context.Context, studentID string) (string, error)
	GetBiometricTemplate(ctx context.Context, studentID string) ([]byte, error)
}

// Validator checks presented credentials against stored ones. Any single
// matching factor is sufficient.
type Validator struct {
	store  Store
	cipher *TemplateCipher
}

// NewValidator creates a validator. cipher may be nil when templates are
// stored unencrypted.
func NewValidator(store Store, cipher *TemplateCipher) *Validator {
	return &Validator{store: store, cipher: cipher}
}

// Validate reports whether c matches the student's stored credentials. The
// error is non-nil only when the store could not be read.
func (v *Validator) Validate(ctx context.Context, studentID string, c Credential) (bool, error) {
	if c.Empty() {
		return false, nil
	}

	if c.NFCTagID != "" {
		tag, err := v.store.GetNFCTag(ctx, studentID)
		if err != nil {
			return false, fmt.Errorf("read nfc tag: %w", err)
		}
		if tag != "" && equal([]byte(tag), []byte(c.NFCTagID)) {
			return true, nil
		}
	}

	if len(c.BiometricSample) > 0 {
		sealed, err := v.store.GetBiometricTemplate(ctx, studentID)
		if err != nil {
			return false, fmt.Errorf("read biometric template: %w", err)
		}
		if len(sealed) == 0 {
			return false, nil
		}
		template, err := v.cipher.Open(sealed)
		if err != nil {
			// an undecryptable template can never match
			log.Printf("biometric template for %s unreadable: %v", studentID, err)
			return false, nil
		}
		if equal(template, c.BiometricSample) {
			return true, nil
		}
	}
	return false, nil
}

func equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
