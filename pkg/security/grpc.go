package security

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// gRPC metadata keys. Metadata keys are lowercase by convention.
const (
	mdAuthorization   = "authorization"
	mdProjectOverride = "x-archivist-project-id"
)

// UnaryServerInterceptor returns a gRPC unary interceptor that
// resolves the API-key credential in the request metadata to an Actor
// on the handler context. Rejections surface as codes.Unauthenticated
// or codes.PermissionDenied with no further detail; the real reason
// is logged server-side.
func UnaryServerInterceptor(authorizer *APIKeyAuthorizer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authorizeGRPC(ctx, authorizer)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the stream counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(authorizer *APIKeyAuthorizer) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authorizeGRPC(ss.Context(), authorizer)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that
// mints a fresh service token for each outgoing call.
func UnaryClientInterceptor(key *ServiceKey) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, err := attachServiceToken(ctx, key)
		if err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the stream counterpart of
// [UnaryClientInterceptor].
func StreamClientInterceptor(key *ServiceKey) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, err := attachServiceToken(ctx, key)
		if err != nil {
			return nil, err
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}

func authorizeGRPC(ctx context.Context, authorizer *APIKeyAuthorizer) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, msgNotAuthorized)
	}

	var token string
	if values := md.Get(mdAuthorization); len(values) > 0 {
		token = ExtractBearerToken(values[0])
	}
	if token == "" {
		return ctx, status.Error(codes.Unauthenticated, msgNotAuthorized)
	}

	var override *uuid.UUID
	if values := md.Get(mdProjectOverride); len(values) > 0 && values[0] != "" {
		id, err := uuid.Parse(values[0])
		if err != nil {
			return ctx, status.Error(codes.Unauthenticated, msgNotAuthorized)
		}
		override = &id
	}

	actor, err := authorizer.Authorize(ctx, token, override)
	if err != nil {
		slog.WarnContext(ctx, "grpc request rejected",
			"error", err,
			"code", zerr.GetCode(err),
		)
		if zerr.IsAuthorization(err) {
			return ctx, status.Error(codes.PermissionDenied, msgForbidden)
		}
		return ctx, status.Error(codes.Unauthenticated, msgNotAuthorized)
	}
	return WithActor(ctx, actor), nil
}

func attachServiceToken(ctx context.Context, key *ServiceKey) (context.Context, error) {
	token, err := key.MintToken(time.Now())
	if err != nil {
		return ctx, status.Error(codes.Internal, "unable to sign request")
	}
	return metadata.AppendToOutgoingContext(ctx, mdAuthorization, "Bearer "+token), nil
}

// wrappedServerStream overrides the stream context with the
// actor-carrying one.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
