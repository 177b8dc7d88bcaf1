package fakeapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"

	"immun/internal/shared/models"
)

var errInvalidCredentials = errors.New("invalid credentials")

// tokens issues and checks HS256 access tokens whose subject is the user id.
type tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (t tokens) issue(userID models.ID) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iat": t.now().Unix(),
		"exp": t.now().Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t tokens) parse(token string) (models.ID, error) {
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token subject")
	}
	return models.ID(sub), nil
}

// Argon2id parameters kept small so test logins stay fast.
const (
	argonMemory      uint32 = 8 * 1024
	argonIterations  uint32 = 1
	argonParallelism uint8  = 1
	argonSaltLength         = 16
	argonHashLength  uint32 = 32
)

// hashPassword returns a PHC formatted Argon2id hash.
func hashPassword(password string) ([]byte, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonHashLength)
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
	return []byte(encoded), nil
}

// verifyPassword reports whether password matches a hash from hashPassword.
// Malformed hashes never match.
func verifyPassword(encoded []byte, password string) bool {
	parts := strings.Split(string(encoded), "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func (s *Server) authenticate(ctx context.Context, username, password string) (models.LoginResponse, error) {
	acc, err := s.store.userByUsername(ctx, username)
	if err != nil {
		return models.LoginResponse{}, errInvalidCredentials
	}
	if !verifyPassword(acc.PasswordHash, password) {
		return models.LoginResponse{}, errInvalidCredentials
	}
	tok, err := s.tokens.issue(acc.ID)
	if err != nil {
		return models.LoginResponse{}, err
	}
	return models.LoginResponse{AccessToken: tok, User: acc.User}, nil
}
