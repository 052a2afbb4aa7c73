package handler

// GenerateTokenRequest トークン生成リクエスト
// @Description トークン生成リクエスト
type GenerateTokenRequest struct {
	PlayerID   string `json:"player_id" example:"0b7a4c54-7e3c-4b0e-9a52-3f3f0f6f1d11"`
	PlayerName string `json:"player_name,omitempty" example:"Steve"`
}

// GenerateTokenResponse トークン生成レスポンス
// @Description トークン生成レスポンス
type GenerateTokenResponse struct {
	Token     string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiIwYjdhNGM1NCJ9.signature"`
	ExpiresIn int64  `json:"expires_in" example:"3600"`
	TokenType string `json:"token_type" example:"Bearer"`
}
