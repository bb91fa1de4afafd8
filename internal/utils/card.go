package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// CardNumberLength is the length of every issued card number.
const CardNumberLength = 16

// LuhnSum returns the Luhn sum of a digit string: digits are summed right to
// left, every second one doubled and folded when above 9.
func LuhnSum(number string) int {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum
}

// LuhnValid reports whether number is all digits and passes the Luhn check.
func LuhnValid(number string) bool {
	if number == "" {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return LuhnSum(number)%10 == 0
}

// CheckDigit computes the digit that makes body+digit Luhn valid.
func CheckDigit(body string) byte {
	return byte((10-LuhnSum(body+"0")%10)%10) + '0'
}

// RandomDigits reads n uniformly distributed decimal digits from r.
func RandomDigits(r io.Reader, n int) (string, error) {
	var builder strings.Builder
	builder.Grow(n)
	buf := make([]byte, n)
	for builder.Len() < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to generate random digits: %w", err)
		}
		for _, b := range buf {
			// 250 is the largest multiple of 10 below 256; higher bytes would bias the digits.
			if b >= 250 {
				continue
			}
			builder.WriteByte(b%10 + '0')
			if builder.Len() == n {
				break
			}
		}
	}
	return builder.String(), nil
}

// GenerateCardNumber builds a Luhn valid 16 digit number starting with prefix.
func GenerateCardNumber(prefix string, r io.Reader) (string, error) {
	if len(prefix) >= CardNumberLength {
		return "", fmt.Errorf("invalid card number prefix: %q", prefix)
	}
	if r == nil {
		r = rand.Reader
	}
	digits, err := RandomDigits(r, CardNumberLength-1-len(prefix))
	if err != nil {
		return "", err
	}
	body := prefix + digits
	return body + string(CheckDigit(body)), nil
}

// LastDigits returns the final four characters of a card number.
func LastDigits(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

// MaskNumber renders a card number from its last four digits.
func MaskNumber(lastDigits string) string {
	return "**** **** **** " + lastDigits
}

// Digest returns a keyed SHA-256 digest of a card number, used for uniqueness lookups.
func Digest(cardNumber, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(cardNumber))
	return hex.EncodeToString(h.Sum(nil))
}

// CardCipher encrypts card numbers at rest with AES-GCM.
type CardCipher struct {
	aead cipher.AEAD
}

// NewCardCipher creates a cipher from a 16, 24 or 32 byte key.
func NewCardCipher(key []byte) (*CardCipher, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &CardCipher{aead: aead}, nil
}

// Encrypt returns hex(nonce || ciphertext).
func (c *CardCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("input data is empty")
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *CardCipher) Decrypt(encrypted string) (string, error) {
	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}
	if len(data) < c.aead.NonceSize() {
		return "", fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}
	nonce, ciphertext := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
