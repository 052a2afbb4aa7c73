package handler

import (
	redemptionapp "redeem-server/internal/application/code_redemption"
	"redeem-server/internal/domain/redeem_property"
)

// RedeemCodeRequest コード引き換えリクエスト
// @Description コード引き換えリクエスト
type RedeemCodeRequest struct {
	Code string `json:"code" example:"SUMMER24"`
	Pin  *int   `json:"pin,omitempty" example:"1234"`
}

// RewardView 引き換えで実行される報酬
// @Description 引き換えで実行される報酬
type RewardView struct {
	Commands []string                 `json:"commands"`
	Messages redeem_property.Messages `json:"messages"`
	Sound    redeem_property.Sound    `json:"sound"`
	Rewards  []string                 `json:"rewards"`
}

// RedeemCodeResponse コード引き換えレスポンス
// @Description コード引き換えレスポンス
type RedeemCodeResponse struct {
	Success     bool        `json:"success"`
	Code        string      `json:"code" example:"SUMMER24"`
	Template    string      `json:"template,omitempty" example:"summer"`
	Reason      string      `json:"reason" example:"eligible" enums:"eligible,not_found,disabled,expired,not_targeted,no_permission,wrong_pin,limit_reached,player_limit_reached,on_cooldown,condition_failed"`
	Reward      *RewardView `json:"reward,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// CheckCodeResponse 引き換え可否レスポンス
// @Description 引き換え可否レスポンス
type CheckCodeResponse struct {
	Code     string `json:"code" example:"SUMMER24"`
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason" example:"on_cooldown"`
}

func newRedeemCodeResponse(resp *redemptionapp.RedeemCodeResponse) RedeemCodeResponse {
	out := RedeemCodeResponse{
		Success:     resp.Success(),
		Code:        resp.Code,
		Template:    resp.Template,
		Reason:      resp.Reason.String(),
		Suggestions: resp.Suggestions,
	}
	if resp.Reward != nil {
		out.Reward = &RewardView{
			Commands: resp.Reward.Commands,
			Messages: resp.Reward.Messages,
			Sound:    resp.Reward.Sound,
			Rewards:  resp.Reward.Rewards,
		}
	}
	return out
}
