package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/olyamironova/auction-engine/internal/api/stream"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "matching.v1.Auction"

// maxExactID is the largest id a protobuf number carries without rounding.
const maxExactID = 1 << 53

// Engine is the part of core.Engine the gRPC API needs.
type Engine interface {
	Symbol() string
	Process(ctx context.Context, o domain.Order) ([]domain.Trade, error)
	Snapshot(depth int) *domain.BookSnapshot
}

// AuctionServer is the handler type registered under ServiceName.
type AuctionServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetOrderbook(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Subscribe(req *emptypb.Empty, st grpc.ServerStream) error
}

type GRPCServer struct {
	eng Engine
	hub *stream.Hub
	log *slog.Logger
}

var _ AuctionServer = (*GRPCServer)(nil)

// NewGRPCServer serves eng; hub may be nil, in which case Subscribe is unavailable.
func NewGRPCServer(eng Engine, hub *stream.Hub, log *slog.Logger) *GRPCServer {
	if log == nil {
		log = slog.Default()
	}
	return &GRPCServer{eng: eng, hub: hub, log: log.With("component", "grpc")}
}

// Register adds the service to s.
func (s *GRPCServer) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&ServiceDesc, s)
}

func (s *GRPCServer) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	o, err := OrderFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	trades, err := s.eng.Process(ctx, o)
	if err != nil {
		return nil, toStatus(err)
	}

	var filled uint32
	list := make([]any, 0, len(trades))
	for _, t := range trades {
		filled += t.Quantity
		list = append(list, map[string]any{
			"id":            t.ID,
			"buy_order_id":  float64(t.BuyOrderID),
			"sell_order_id": float64(t.SellOrderID),
			"price":         t.Price.StringFixed(domain.PriceDigits),
			"quantity":      float64(t.Quantity),
			"maker":         string(t.Maker),
			"sequence":      float64(t.Sequence),
			"ordinal":       float64(t.Ordinal),
			"timestamp":     t.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return structpb.NewStruct(map[string]any{
		"id":     float64(o.ID),
		"filled": float64(filled),
		"trades": list,
	})
}

func (s *GRPCServer) GetOrderbook(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	depth := 0
	if v, ok := req.GetFields()["depth"]; ok {
		n, err := wholeNumber(v, "depth", math.MaxInt32)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		depth = int(n)
	}
	snap := s.eng.Snapshot(depth)
	return structpb.NewStruct(map[string]any{
		"symbol":   snap.Symbol,
		"sequence": float64(snap.Sequence),
		"bids":     levelList(snap.Bids),
		"asks":     levelList(snap.Asks),
	})
}

// Subscribe streams every event as {"type", "sequence", "payload"} until the client leaves.
func (s *GRPCServer) Subscribe(_ *emptypb.Empty, st grpc.ServerStream) error {
	if s.hub == nil {
		return status.Error(codes.Unimplemented, "event stream disabled")
	}
	sub := s.hub.Subscribe()
	defer sub.Close()

	ctx := st.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-sub.C():
			if !ok {
				return nil
			}
			msg, err := EventStruct(m)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := st.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// EventStruct converts a stream message into the payload sent over gRPC.
func EventStruct(m stream.Message) (*structpb.Struct, error) {
	var wire map[string]any
	if err := json.Unmarshal(m.Data, &wire); err != nil {
		return nil, err
	}
	wire["sequence"] = float64(m.Sequence)
	return structpb.NewStruct(wire)
}

// OrderFromStruct reads {"id", "side", "price", "quantity"}. price may be a string or a
// number.
func OrderFromStruct(req *structpb.Struct) (domain.Order, error) {
	f := req.GetFields()
	id, err := wholeNumber(f["id"], "id", maxExactID)
	if err != nil {
		return domain.Order{}, err
	}
	qty, err := wholeNumber(f["quantity"], "quantity", math.MaxUint32)
	if err != nil {
		return domain.Order{}, err
	}
	var price decimal.Decimal
	switch v := f["price"].GetKind().(type) {
	case *structpb.Value_StringValue:
		if price, err = decimal.NewFromString(v.StringValue); err != nil {
			return domain.Order{}, fmt.Errorf("invalid price %q", v.StringValue)
		}
	case *structpb.Value_NumberValue:
		price = decimal.NewFromFloat(v.NumberValue)
	default:
		return domain.Order{}, errors.New("price is required")
	}
	return domain.Order{
		ID:       uint64(id),
		Side:     domain.Side(f["side"].GetStringValue()),
		Price:    price,
		Quantity: uint32(qty),
	}, nil
}

func wholeNumber(v *structpb.Value, name string, max float64) (float64, error) {
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	n := nv.NumberValue
	if n < 0 || n > max || n != math.Trunc(n) {
		return 0, fmt.Errorf("%s must be a whole number in [0, %.0f]", name, max)
	}
	return n, nil
}

func levelList(levels []domain.Level) []any {
	out := make([]any, 0, len(levels))
	for _, l := range levels {
		out = append(out, map[string]any{
			"price":    l.Price.StringFixed(domain.PriceDigits),
			"orders":   float64(l.Orders),
			"quantity": float64(l.Quantity),
		})
	}
	return out
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrDuplicateOrder):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrInvalidOrder):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// LoggingInterceptor logs each unary call with its status code.
func LoggingInterceptor(l *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelDebug
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		l.Log(ctx, level, "grpc call", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
		return resp, err
	}
}
