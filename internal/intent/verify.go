package intent

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"errors"
)

// errAssertionSignature is returned when no supported key type verifies the
// assertion signature.
var errAssertionSignature = errors.New("intent: assertion signature verification failed")

// verifyAssertionSignature checks a WebAuthn assertion signature over
// authenticatorData || SHA-256(clientDataJSON), per the WebAuthn
// specification's "verify the assertion signature" step. key is either a
// raw Ed25519 public key, or a DER/PKIX-encoded Ed25519 or ECDSA public key.
// Other PKIX key types, RSA included, are not verified and fail with
// errAssertionSignature.
func verifyAssertionSignature(key []byte, clientDataJSON, authData, signature []byte) error {
	clientDataHash := sha256.Sum256(clientDataJSON)
	signedData := append(append([]byte{}, authData...), clientDataHash[:]...)

	if len(key) == ed25519.PublicKeySize {
		if ed25519.Verify(ed25519.PublicKey(key), signedData, signature) {
			return nil
		}
		return errors.New("ed25519 signature verification failed")
	}

	pub, err := x509.ParsePKIXPublicKey(key)
	if err != nil {
		return errAssertionSignature
	}
	switch pk := pub.(type) {
	case ed25519.PublicKey:
		if ed25519.Verify(pk, signedData, signature) {
			return nil
		}
	case *ecdsa.PublicKey:
		hash := sha256.Sum256(signedData)
		if ecdsa.VerifyASN1(pk, hash[:], signature) {
			return nil
		}
	}
	return errAssertionSignature
}
