package service

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// PaymentServiceClient is a client for the PaymentService.
type PaymentServiceClient struct {
	createSplit *connect.Client[structpb.Struct, structpb.Struct]
	getSplit    *connect.Client[structpb.Struct, structpb.Struct]
	createOrder *connect.Client[structpb.Struct, structpb.Struct]
}

// NewPaymentServiceClient constructs a client for the PaymentService at baseURL
// (e.g. http://localhost:8080).
func NewPaymentServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PaymentServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &PaymentServiceClient{
		createSplit: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+CreateSplitProcedure, opts...),
		getSplit:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+GetSplitProcedure, opts...),
		createOrder: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+CreateOrderProcedure, opts...),
	}
}

func (c *PaymentServiceClient) CreateSplit(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.createSplit.CallUnary(ctx, req)
}

func (c *PaymentServiceClient) GetSplit(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.getSplit.CallUnary(ctx, req)
}

func (c *PaymentServiceClient) CreateOrder(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return c.createOrder.CallUnary(ctx, req)
}

// BearerToken returns a client interceptor that authenticates every call with token.
func BearerToken(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}
