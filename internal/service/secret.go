package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// secretBytes: 5 случайных байт дают секрет из 10 hex-символов
const secretBytes = 5

// maxSecretAttempts: сколько раз повторяем вставку при совпадении секрета
const maxSecretAttempts = 3

// SecretGenerator выдаёт непредсказуемые секреты для публичных ссылок
type SecretGenerator interface {
	Generate() (string, error)
}

// HexSecretGenerator берёт случайные байты из crypto/rand
type HexSecretGenerator struct{}

func NewSecretGenerator() *HexSecretGenerator {
	return &HexSecretGenerator{}
}

func (g *HexSecretGenerator) Generate() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// maskSecret оставляет в логах только начало секрета
func maskSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "…"
}
