package grpc

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yourusername/minichain/pkg/types"
)

// Client talks to a node over gRPC
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the node at address. Extra options are appended to the
// default insecure transport credentials.
func Dial(ctx context.Context, address string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.DialContext(ctx, address, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", address)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out proto.Message) error {
	return c.conn.Invoke(ctx, fullMethod(method), in, out)
}

func (c *Client) invokeView(ctx context.Context, method string, in proto.Message, view interface{}) error {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, view)
}

// ChainInfo returns the state of the node
func (c *Client) ChainInfo(ctx context.Context) (*types.ChainInfo, error) {
	info := new(types.ChainInfo)
	if err := c.invokeView(ctx, methodGetChainInfo, &emptypb.Empty{}, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Block retrieves a block by hash
func (c *Client) Block(ctx context.Context, hash string) (*types.BlockSummary, error) {
	summary := new(types.BlockSummary)
	if err := c.invokeView(ctx, methodGetBlock, wrapperspb.String(hash), summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// BlockAtHeight retrieves a block by height
func (c *Client) BlockAtHeight(ctx context.Context, height uint64) (*types.BlockSummary, error) {
	summary := new(types.BlockSummary)
	if err := c.invokeView(ctx, methodGetBlockByHeight, wrapperspb.UInt64(height), summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// Balance returns the confirmed balance of address
func (c *Client) Balance(ctx context.Context, address string) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.invoke(ctx, methodGetBalance, wrapperspb.String(address), out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Mempool returns the transactions waiting to be mined
func (c *Client) Mempool(ctx context.Context) (*types.Mempool, error) {
	mempool := new(types.Mempool)
	if err := c.invokeView(ctx, methodGetMempool, &emptypb.Empty{}, mempool); err != nil {
		return nil, err
	}
	return mempool, nil
}

// Send queues a transfer on the node
func (c *Client) Send(ctx context.Context, from, to string, amount int64) (*types.TransactionView, error) {
	in, err := toStruct(&types.SendRequest{From: from, To: to, Amount: amount})
	if err != nil {
		return nil, err
	}
	view := new(types.TransactionView)
	if err := c.invokeView(ctx, methodSend, in, view); err != nil {
		return nil, err
	}
	return view, nil
}

// Mine mines one block. An empty miner uses the node's default.
func (c *Client) Mine(ctx context.Context, miner string) (*types.BlockSummary, error) {
	summary := new(types.BlockSummary)
	if err := c.invokeView(ctx, methodMine, wrapperspb.String(miner), summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// StartMining starts background mining on the node
func (c *Client) StartMining(ctx context.Context, miner string) error {
	return c.invoke(ctx, methodStartMining, wrapperspb.String(miner), &emptypb.Empty{})
}

// StopMining stops background mining on the node
func (c *Client) StopMining(ctx context.Context) error {
	return c.invoke(ctx, methodStopMining, &emptypb.Empty{}, &emptypb.Empty{})
}

// SubscribeBlocks calls onBlock for every block the node mines until ctx is
// done or the stream fails.
func (c *Client) SubscribeBlocks(ctx context.Context, onBlock func(*types.BlockSummary)) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod(streamSubscribeBlocks))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		summary := new(types.BlockSummary)
		if err := fromStruct(out, summary); err != nil {
			return err
		}
		onBlock(summary)
	}
}
