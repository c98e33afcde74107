// Package proofs builds and signs capture manifests. When proof mode is
// active, the recording notifier attaches a signed manifest to each captured
// clip so downstream publishing can attest where and how it was recorded.
package proofs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const manifestIssuer = "divine-proofs"

var (
	errMissingSigningKey = errors.New("proofs: signing key must be provided")
	errMissingFilePath   = errors.New("proofs: capture file path must be provided")
)

// Manifest describes one captured clip.
type Manifest struct {
	FilePath     string `json:"filePath"`
	FileSHA256   string `json:"fileSha256"`
	DeviceModel  string `json:"deviceModel,omitempty"`
	Platform     string `json:"platform,omitempty"`
	SegmentCount int    `json:"segmentCount"`
	DurationMS   int64  `json:"durationMs"`
}

type manifestClaims struct {
	Manifest Manifest `json:"manifest"`
	jwt.RegisteredClaims
}

// SignerConfig configures the manifest signer.
type SignerConfig struct {
	SigningKey []byte
	Clock      func() time.Time
}

// Signer produces signed capture manifests as compact HS256 tokens.
type Signer struct {
	key   []byte
	clock func() time.Time
}

// NewSigner constructs a Signer.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errMissingSigningKey
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Signer{key: cfg.SigningKey, clock: clock}, nil
}

// Sign hashes the capture file, embeds the manifest, and returns the signed
// token.
func (s *Signer) Sign(manifest Manifest) (string, error) {
	if manifest.FilePath == "" {
		return "", errMissingFilePath
	}
	if manifest.FileSHA256 == "" {
		digest, err := fileSHA256(manifest.FilePath)
		if err != nil {
			return "", fmt.Errorf("proofs: hashing capture file: %w", err)
		}
		manifest.FileSHA256 = digest
	}

	now := s.clock().UTC()
	claims := manifestClaims{
		Manifest: manifest,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   manifestIssuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify parses a signed manifest token and returns the embedded manifest.
func (s *Signer) Verify(tokenString string) (Manifest, error) {
	claims := &manifestClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return s.key, nil
		},
		jwt.WithIssuer(manifestIssuer),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return Manifest{}, err
	}
	return claims.Manifest, nil
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
