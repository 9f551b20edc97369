package vo

import (
	"errors"
	"strings"
)

// TokenLength is the length of an encoded share token (128 bits as hex)
const TokenLength = 32

// ShareToken represents the opaque token carried in a share link.
type ShareToken struct {
	value string
}

var (
	ErrEmptyToken   = errors.New("share token cannot be empty")
	ErrInvalidToken = errors.New("invalid share token format")
)

// NewShareToken creates a new ShareToken value object.
// Tokens are 32 lowercase hex characters.
func NewShareToken(token string) (ShareToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ShareToken{}, ErrEmptyToken
	}
	if len(token) != TokenLength {
		return ShareToken{}, ErrInvalidToken
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return ShareToken{}, ErrInvalidToken
		}
	}
	return ShareToken{value: token}, nil
}

// EmptyShareToken returns an empty ShareToken.
func EmptyShareToken() ShareToken {
	return ShareToken{}
}

// String returns the string representation of the token.
func (st ShareToken) String() string {
	return st.value
}

// Masked returns a masked version of the token for logging.
// Shows first 4 and last 4 characters with asterisks in between.
func (st ShareToken) Masked() string {
	return MaskToken(st.value)
}

// MaskToken masks an arbitrary, possibly malformed, token string for logging.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "****" + token[len(token)-4:]
}
