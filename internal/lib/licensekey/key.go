// Package licensekey реализует генерацию и разбор ключей лицензий.
//
// Ключ имеет формат LIC-{TIER}-{8 hex}: например LIC-PRO-1A2B3C4D.
// Случайная часть берётся из crypto/rand, уникальность во всём хранилище
// дополнительно гарантируется повторной генерацией при коллизии.
package licensekey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Prefix — общий префикс всех ключей лицензий.
const Prefix = "LIC"

var keyPattern = regexp.MustCompile(`^LIC-([A-Z]+)-([0-9A-F]{8})$`)

// New генерирует новый ключ лицензии для тарифа tier.
func New(tier string) (string, error) {
	const op = "licensekey.New"
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	suffix := strings.ToUpper(hex.EncodeToString(buf))
	return fmt.Sprintf("%s-%s-%s", Prefix, strings.ToUpper(tier), suffix), nil
}

// Tier извлекает тариф из ключа лицензии.
// Возвращает ошибку, если ключ не соответствует формату.
func Tier(key string) (string, error) {
	const op = "licensekey.Tier"
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", fmt.Errorf("%s: malformed key %q", op, key)
	}
	return m[1], nil
}

// Valid сообщает, соответствует ли ключ формату LIC-{TIER}-{8 hex}.
func Valid(key string) bool {
	return keyPattern.MatchString(key)
}
