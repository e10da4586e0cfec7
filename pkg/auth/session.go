package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken はトークン形式・署名が不正な場合に返される
	ErrInvalidToken = errors.New("invalid session token")
	// ErrExpiredToken は有効期限切れのトークンに対して返される
	ErrExpiredToken = errors.New("session token expired")
)

const (
	sessionCookieName = "inbox_session"
	minSecretLen      = 32
	// SessionTTL is the lifetime of a freshly issued session.
	SessionTTL = 30 * 24 * time.Hour
)

// CreateSessionToken はユーザーIDと有効期限から署名付きセッショントークンを生成する
// Format: base64(userID "|" unixExpiry) "." hex(hmac-sha256)
func CreateSessionToken(userID string, expiresAt time.Time, secret []byte) string {
	payload := []byte(userID + "|" + strconv.FormatInt(expiresAt.Unix(), 10))
	return base64.URLEncoding.EncodeToString(payload) + "." + sign(payload, secret)
}

// VerifySessionToken はトークンを検証しユーザーIDを返す
func VerifySessionToken(token string, secret []byte, now time.Time) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}
	payload, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidToken
	}
	if !hmac.Equal([]byte(sign(payload, secret)), []byte(sig)) {
		return "", ErrInvalidToken
	}

	userID, rawExpiry, ok := strings.Cut(string(payload), "|")
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if !now.Before(time.Unix(expiry, 0)) {
		return "", ErrExpiredToken
	}
	return userID, nil
}

func sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SessionCookieName はセッションクッキー名
func SessionCookieName() string {
	return sessionCookieName
}

// SessionSecretBytes は文字列からセッション署名用のバイト列を生成する（最低32バイト）
func SessionSecretBytes(s string) []byte {
	b := []byte(s)
	if len(b) < minSecretLen {
		out := make([]byte, minSecretLen)
		copy(out, b)
		return out
	}
	return b
}
