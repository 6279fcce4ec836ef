package post

import (
	"context"
	"errors"

	"github.com/nao1215/postboard/pkg/codec"
	"github.com/nao1215/postboard/pkg/rpc"
)

// 投稿サービスが公開するRPCメソッド名。
const (
	MethodCreate = "post.create"
	MethodGet    = "post.get"
	MethodUpdate = "post.update"
	MethodDelete = "post.delete"
	MethodList   = "post.list"
)

// idParams は投稿IDだけを受け取るメソッドのパラメータ。
type idParams struct {
	ID string `json:"id"`
}

// updateParams はpost.updateのパラメータ。
type updateParams struct {
	ID     string `json:"id"`
	Update Update `json:"update"`
}

// deleteResult はpost.deleteの結果。
type deleteResult struct {
	Success bool `json:"success"`
}

// Register は投稿サービスのRPCメソッドをサーバーに登録する。
// 呼び出し元のユーザーIDはrpc.CallerFromで取得したものだけを使う。
func Register(server *rpc.Server, svc *Service) {
	server.Handle(MethodCreate, func(ctx context.Context, raw codec.RawMessage) (any, error) {
		var in NewPost
		if err := decodeParams(raw, &in); err != nil {
			return nil, err
		}
		p, err := svc.Create(ctx, rpc.CallerFrom(ctx), in)
		return p, toRPCError(err)
	})

	server.Handle(MethodGet, func(ctx context.Context, raw codec.RawMessage) (any, error) {
		var params idParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		p, err := svc.Get(ctx, params.ID, rpc.CallerFrom(ctx))
		return p, toRPCError(err)
	})

	server.Handle(MethodUpdate, func(ctx context.Context, raw codec.RawMessage) (any, error) {
		var params updateParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		p, err := svc.Update(ctx, params.ID, rpc.CallerFrom(ctx), params.Update)
		return p, toRPCError(err)
	})

	server.Handle(MethodDelete, func(ctx context.Context, raw codec.RawMessage) (any, error) {
		var params idParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		ok, err := svc.Delete(ctx, params.ID, rpc.CallerFrom(ctx))
		return deleteResult{Success: ok}, toRPCError(err)
	})

	server.Handle(MethodList, func(ctx context.Context, raw codec.RawMessage) (any, error) {
		var req PageRequest
		if err := decodeParams(raw, &req); err != nil {
			return nil, err
		}
		page, err := svc.List(ctx, req, rpc.CallerFrom(ctx))
		return page, toRPCError(err)
	})
}

func decodeParams(raw codec.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := codec.Unmarshal(raw, v); err != nil {
		return rpc.Errorf(rpc.CodeInvalidArgument, "パラメータが不正です")
	}
	return nil
}

// toRPCError はドメインのエラーをRPCのステータスに変換する。
// それ以外のエラーはそのまま返し、サーバーがINTERNALとして扱う。
func toRPCError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return rpc.Errorf(rpc.CodeNotFound, "%s", ErrNotFound.Error())
	case errors.Is(err, ErrPermissionDenied):
		return rpc.Errorf(rpc.CodePermissionDenied, "%s", ErrPermissionDenied.Error())
	case errors.Is(err, ErrInvalidArgument):
		return rpc.Errorf(rpc.CodeInvalidArgument, "%s", err.Error())
	default:
		return err
	}
}
