package credential

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	tags      map[string]string
	templates map[string][]byte
	err       error
}

func (f fakeStore) GetNFCTag(_ context.Context, id string) (string, error) {
	return f.tags[id], f.err
}

func (f fakeStore) GetBiometricTemplate(_ context.Context, id string) ([]byte, error) {
	return f.templates[id], f.err
}

func TestValidator_ORSemantics(t *testing.T) {
	store := fakeStore{
		tags:      map[string]string{"s1": "tag-1"},
		templates: map[string][]byte{"s1": []byte("face-1")},
	}
	v := NewValidator(store, nil)

	testCases := []struct {
		name string
		cred Credential
		want bool
	}{
		{"no factor", Credential{}, false},
		{"nfc match", Credential{NFCTagID: "tag-1"}, true},
		{"nfc mismatch", Credential{NFCTagID: "tag-2"}, false},
		{"biometric match", Credential{BiometricSample: []byte("face-1")}, true},
		{"biometric mismatch", Credential{BiometricSample: []byte("face-2")}, false},
		{"wrong nfc, right biometric", Credential{NFCTagID: "tag-2", BiometricSample: []byte("face-1")}, true},
		{"right nfc, wrong biometric", Credential{NFCTagID: "tag-1", BiometricSample: []byte("face-2")}, true},
		{"both wrong", Credential{NFCTagID: "tag-2", BiometricSample: []byte("face-2")}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := v.Validate(context.Background(), "s1", tc.cred)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestValidator_NoStoredCredential(t *testing.T) {
	v := NewValidator(fakeStore{}, nil)
	ok, err := v.Validate(context.Background(), "s1", Credential{NFCTagID: "", BiometricSample: []byte("x")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidator_StoreError(t *testing.T) {
	v := NewValidator(fakeStore{err: errors.New("connection refused")}, nil)
	_, err := v.Validate(context.Background(), "s1", Credential{NFCTagID: "tag-1"})
	assert.ErrorContains(t, err, "connection refused")
}

func TestValidator_EncryptedTemplates(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	c, err := NewTemplateCipher(key)
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("face-1"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "face-1")

	v := NewValidator(fakeStore{templates: map[string][]byte{"s1": sealed}}, c)
	ok, err := v.Validate(context.Background(), "s1", Credential{BiometricSample: []byte("face-1")})
	require.NoError(t, err)
	assert.True(t, ok)

	// a template sealed under another key never matches
	other, err := NewTemplateCipher(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	v = NewValidator(fakeStore{templates: map[string][]byte{"s1": sealed}}, other)
	ok, err = v.Validate(context.Background(), "s1", Credential{BiometricSample: []byte("face-1")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewTemplateCipher_KeySize(t *testing.T) {
	_, err := NewTemplateCipher([]byte("short"))
	assert.Error(t, err)
}
