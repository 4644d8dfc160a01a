package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atsora/pomamo-engine-sub026/internal/model"
	"github.com/atsora/pomamo-engine-sub026/internal/timerange"
)

// #region client-struct
// Client calls a remote ReasonSlots service.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}
// #endregion client-struct

// #region constructor
// NewClient connects to addr without transport security.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client on an existing connection.
// Used for testing with an in-memory listener.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}
// #endregion constructor

// Close shuts down the connection opened by NewClient.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, fmt.Errorf("%s rpc: %w", method, err)
	}
	return out.AsMap(), nil
}

// #region calls

// RangeRequest mirrors orchestrator.RangeQuery on the wire.
type RangeRequest struct {
	Variant string
	Machine model.MachineID
	Range   timerange.Range
	Extend  bool
	Limit   timerange.Range
}

func putRange(req map[string]any, lowerField, upperField string, r timerange.Range) {
	if r.HasLower() {
		req[lowerField] = r.Lower.UTC().Format(time.RFC3339Nano)
	}
	if r.HasUpper() {
		req[upperField] = r.Upper.UTC().Format(time.RFC3339Nano)
	}
}

// Range fetches the view of a window.
func (c *Client) Range(ctx context.Context, r RangeRequest) (map[string]any, error) {
	req := map[string]any{fieldMachine: int(r.Machine), fieldVariant: r.Variant, fieldExtend: r.Extend}
	putRange(req, fieldLower, fieldUpper, r.Range)
	putRange(req, fieldLimitLower, fieldLimitUpper, r.Limit)
	return c.invoke(ctx, methodRange, req)
}

// At fetches the view slot covering at.
func (c *Client) At(ctx context.Context, variant string, machine model.MachineID, at time.Time, extend bool) (map[string]any, error) {
	return c.invoke(ctx, methodAt, map[string]any{
		fieldMachine: int(machine),
		fieldVariant: variant,
		fieldAt:      at.UTC().Format(time.RFC3339Nano),
		fieldExtend:  extend,
	})
}

// Current fetches the current state of machine. period uses the
// resolver.PeriodFlags text form.
func (c *Client) Current(ctx context.Context, machine model.MachineID, period string, notRunningOnly bool) (map[string]any, error) {
	return c.invoke(ctx, methodCurrent, map[string]any{
		fieldMachine:       int(machine),
		"period":           period,
		"not_running_only": notRunningOnly,
	})
}

// #endregion
