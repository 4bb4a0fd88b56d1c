// Package service implements the payment RPC surface over Connect.
//
// Messages are google.protobuf.Struct values, so any Connect client (or plain
// JSON over HTTP POST) can call the service without generated stubs.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/splitwiser-pay/internal/calculator"
	"github.com/mmynk/splitwiser-pay/internal/middleware"
	"github.com/mmynk/splitwiser-pay/internal/models"
	"github.com/mmynk/splitwiser-pay/internal/orderref"
	"github.com/mmynk/splitwiser-pay/internal/processor"
	"github.com/mmynk/splitwiser-pay/internal/storage"
)

const (
	// PaymentServiceName is the fully-qualified name of the service.
	PaymentServiceName = "splitwiser.pay.v1.PaymentService"

	CreateSplitProcedure = "/" + PaymentServiceName + "/CreateSplit"
	GetSplitProcedure    = "/" + PaymentServiceName + "/GetSplit"
	CreateOrderProcedure = "/" + PaymentServiceName + "/CreateOrder"
)

// OrderCreator creates orders with the payment processor.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req processor.OrderRequest) (*processor.Order, error)
}

// PaymentService implements the PaymentService RPCs.
type PaymentService struct {
	store     storage.Store
	codec     *orderref.Codec
	processor OrderCreator
	notifyURL string
}

// NewPaymentService creates a PaymentService. notifyURL is the webhook
// endpoint the processor reports payment outcomes to.
func NewPaymentService(store storage.Store, codec *orderref.Codec, proc OrderCreator, notifyURL string) *PaymentService {
	return &PaymentService{
		store:     store,
		codec:     codec,
		processor: proc,
		notifyURL: notifyURL,
	}
}

// NewPaymentServiceHandler builds an HTTP handler for the service and returns
// the path to mount it on.
func NewPaymentServiceHandler(svc *PaymentService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(CreateSplitProcedure, connect.NewUnaryHandler(CreateSplitProcedure, svc.CreateSplit, opts...))
	mux.Handle(GetSplitProcedure, connect.NewUnaryHandler(GetSplitProcedure, svc.GetSplit, opts...))
	mux.Handle(CreateOrderProcedure, connect.NewUnaryHandler(CreateOrderProcedure, svc.CreateOrder, opts...))
	return "/" + PaymentServiceName + "/", mux
}

// CreateSplit computes each participant's share and persists a new split.
//
// Request: {title, currency, total, subtotal, participants: [id | {id, name}],
// items: [{description, amount, participant_ids}]}
func (s *PaymentService) CreateSplit(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg := req.Msg

	total, err := decimalField(msg, "total")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	subtotal := total
	if _, ok := msg.GetFields()["subtotal"]; ok {
		if subtotal, err = decimalField(msg, "subtotal"); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}

	people := participants(msg)
	ids := make([]string, len(people))
	for i, p := range people {
		if p.ID == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("participants[%d] has no id", i))
		}
		// Member IDs end up inside order references, which cannot carry the separator.
		if strings.Contains(p.ID, orderref.Separator) {
			return nil, connect.NewError(connect.CodeInvalidArgument,
				fmt.Errorf("participant id %q must not contain %q", p.ID, orderref.Separator))
		}
		ids[i] = p.ID
	}

	billItems, err := items(msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	shares, err := calculator.CalculateSplit(billItems, total, subtotal, ids)
	if err != nil {
		slog.Error("CreateSplit: share calculation failed", "error", err)
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	split := &models.Split{
		Title:    stringField(msg, "title"),
		Currency: stringField(msg, "currency"),
		Total:    total,
	}
	if split.Title == "" {
		split.Title = "Split with " + strings.Join(ids, ", ")
	}
	if split.Currency == "" {
		split.Currency = "INR"
	}
	for _, p := range people {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		split.Members = append(split.Members, models.Member{
			ID:     p.ID,
			Name:   name,
			Amount: shares[p.ID].Total,
		})
	}

	if err := s.store.CreateSplit(ctx, split); err != nil {
		slog.Error("CreateSplit failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	slog.Info("Split created",
		"split_id", split.ID,
		"members", len(split.Members),
		"total", split.Total.String(),
		"caller", middleware.GetCaller(ctx),
	)

	out, err := toStruct(map[string]any{
		"split_id": split.ID,
		"members":  split.Members,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// GetSplit returns a split document.
//
// Request: {split_id}
func (s *PaymentService) GetSplit(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	splitID := stringField(req.Msg, "split_id")
	if splitID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("split_id required"))
	}

	split, err := s.store.GetSplit(ctx, splitID)
	if err != nil {
		return nil, storeError("GetSplit", splitID, err)
	}

	out, err := toStruct(split)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// CreateOrder starts a payment for one member's share of a split.
// The order reference is built with orderref so the webhook can map the
// payment back to the member.
//
// Request: {split_id, member_id, customer: {id, email, phone}}
func (s *PaymentService) CreateOrder(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	splitID := stringField(req.Msg, "split_id")
	memberID := stringField(req.Msg, "member_id")
	if splitID == "" || memberID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("split_id and member_id required"))
	}

	split, err := s.store.GetSplit(ctx, splitID)
	if err != nil {
		return nil, storeError("CreateOrder", splitID, err)
	}
	idx := split.MemberIndex(memberID)
	if idx < 0 {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("member %s not in split %s", memberID, splitID))
	}
	member := split.Members[idx]
	if member.Paid {
		return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("member %s has already paid", memberID))
	}
	if !member.Amount.GreaterThan(decimal.Zero) {
		return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("member %s owes nothing", memberID))
	}

	ref, err := s.codec.Encode(splitID, memberID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	customer := processor.Customer{ID: memberID}
	if c := req.Msg.GetFields()["customer"].GetStructValue(); c != nil {
		if id := stringField(c, "id"); id != "" {
			customer.ID = id
		}
		customer.Email = stringField(c, "email")
		customer.Phone = stringField(c, "phone")
	}

	order, err := s.processor.CreateOrder(ctx, processor.OrderRequest{
		OrderID:   ref,
		Amount:    member.Amount,
		Currency:  split.Currency,
		Customer:  customer,
		NotifyURL: s.notifyURL,
		Note:      "order:" + ref,
	})
	if err != nil {
		slog.Error("CreateOrder: processor call failed", "order_ref", ref, "error", err)
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}

	record := &models.PaymentOrder{
		OrderRef:         ref,
		SplitID:          splitID,
		MemberID:         memberID,
		Amount:           member.Amount,
		Currency:         split.Currency,
		ProcessorOrderID: order.CFOrderID,
		PaymentSessionID: order.PaymentSessionID,
		Status:           order.OrderStatus,
	}
	if err := s.store.RecordOrder(ctx, record); err != nil {
		// The processor order exists; the webhook does not depend on this record.
		slog.Warn("CreateOrder: failed to record payment order", "order_ref", ref, "error", err)
	}

	slog.Info("Payment order created",
		"order_ref", ref,
		"split_id", splitID,
		"member_id", memberID,
		"amount", member.Amount.String(),
		"caller", middleware.GetCaller(ctx),
	)

	out, err := structpb.NewStruct(map[string]any{
		"order_ref":          ref,
		"processor_order_id": order.CFOrderID,
		"payment_session_id": order.PaymentSessionID,
		"order_status":       order.OrderStatus,
		"amount":             member.Amount.StringFixed(2),
		"currency":           split.Currency,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// storeError maps a storage error to a Connect error.
func storeError(op, splitID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return connect.NewError(connect.CodeNotFound, err)
	}
	slog.Error(op+" failed", "split_id", splitID, "error", err)
	return connect.NewError(connect.CodeInternal, err)
}
