package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GenerateTokenRequest トークン生成リクエスト
type GenerateTokenRequest struct {
	PlayerID   string
	PlayerName string
}

// GenerateTokenResponse トークン生成レスポンス
type GenerateTokenResponse struct {
	Token     string
	ExpiresIn int64  // 秒単位
	TokenType string // "Bearer"
}

// PlayerClaims プレイヤーセッションのJWTクレーム
type PlayerClaims struct {
	PlayerName string `json:"player_name,omitempty"`
	jwt.RegisteredClaims
}

// PlayerID subjectのプレイヤーIDを返す
func (c *PlayerClaims) PlayerID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}
