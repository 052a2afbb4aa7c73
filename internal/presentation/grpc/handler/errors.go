package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"redeem-server/internal/application/sequencer"
	"redeem-server/internal/domain/player"
	"redeem-server/internal/domain/redemption_code"
)

var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{redemption_code.ErrCodeNotFound, codes.NotFound},
	{redemption_code.ErrInvalidCode, codes.InvalidArgument},
	{player.ErrInvalidPlayerID, codes.InvalidArgument},
	{player.ErrPlayerNotFound, codes.NotFound},
	{sequencer.ErrNotPersisted, codes.Unavailable},
	{sequencer.ErrClosed, codes.Unavailable},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{context.Canceled, codes.Canceled},
}

// toStatus アプリケーションのエラーをgRPCステータスに変換
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return status.Error(sc.code, err.Error())
		}
	}
	return status.Error(codes.Internal, "internal error")
}
