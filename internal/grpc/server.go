package grpc

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yourusername/minichain/internal/block"
	"github.com/yourusername/minichain/internal/blockchain"
	"github.com/yourusername/minichain/internal/logger"
	"github.com/yourusername/minichain/internal/pow"
	"github.com/yourusername/minichain/internal/storage"
	"github.com/yourusername/minichain/internal/tx"
	"github.com/yourusername/minichain/pkg/types"
)

var log, _ = logger.Get(logger.SubsystemTags.RPCS)

// miningRetryDelay is the pause after a failed background mining run
const miningRetryDelay = time.Second

// Server implements NodeServer on top of a Blockchain
type Server struct {
	bc           *blockchain.Blockchain
	defaultMiner string

	// Mining control
	miningMu    sync.Mutex
	stopMining  context.CancelFunc
	miningDone  chan struct{}
	blocksMined atomic.Int64

	// Streaming subscriptions
	blockSubs []chan *block.Block
	subsMu    sync.RWMutex

	// quit is closed by Stop to end open streams
	quit     chan struct{}
	quitOnce sync.Once

	grpcServer *grpc.Server
}

// NewServer creates a node server. defaultMiner receives the rewards of
// mining requests that name no miner.
func NewServer(bc *blockchain.Blockchain, defaultMiner string) *Server {
	s := &Server{
		bc:           bc,
		defaultMiner: defaultMiner,
		quit:         make(chan struct{}),
	}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor))
	s.grpcServer.RegisterService(&ServiceDesc, s)
	return s
}

// Start listens on address and serves until Stop is called
func (s *Server) Start(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	log.Infof("gRPC server listening on %s", lis.Addr())
	if err := s.grpcServer.Serve(lis); err != nil {
		return errors.Wrap(err, "gRPC server failed")
	}
	return nil
}

// Stop stops background mining, ends block subscriptions and stops the
// gRPC server once in-flight calls finish
func (s *Server) Stop() {
	s.stopMiningLoop()
	s.quitOnce.Do(func() { close(s.quit) })
	s.grpcServer.GracefulStop()
}

func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler) (interface{}, error) {

	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		log.Debugf("%s failed after %s: %s", info.FullMethod, time.Since(start), err)
	} else {
		log.Tracef("%s served in %s", info.FullMethod, time.Since(start))
	}
	return resp, err
}

// toStatus maps chain errors to gRPC status codes
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	var insufficient *tx.InsufficientBalanceError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, blockchain.ErrTransactionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, blockchain.ErrInvalidAmount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &insufficient),
		errors.Is(err, blockchain.ErrInvalidTransaction),
		errors.Is(err, blockchain.ErrInvalidBlock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, pow.ErrAttemptsExhausted):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func blockStruct(b *block.Block) (*structpb.Struct, error) {
	summary, err := types.NewBlockSummary(b)
	if err != nil {
		return nil, toStatus(err)
	}
	s, err := toStruct(summary)
	return s, toStatus(err)
}

// GetChainInfo returns the state of the node
func (s *Server) GetChainInfo(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	tip := s.bc.Tip()

	s.miningMu.Lock()
	mining := s.stopMining != nil
	s.miningMu.Unlock()

	info := &types.ChainInfo{
		Height:      tip.Height(),
		TipHash:     tip.Hash(),
		Difficulty:  pow.Difficulty,
		MempoolSize: len(s.bc.Mempool()),
		UTXOCount:   s.bc.UTXOCount(),
		Mining:      mining,
		BlocksMined: s.blocksMined.Load(),
	}
	out, err := toStruct(info)
	return out, toStatus(err)
}

// GetBlock retrieves a block by its hash
func (s *Server) GetBlock(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "block hash is required")
	}
	b, err := s.bc.Block(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return blockStruct(b)
}

// GetBlockByHeight retrieves a block by its height
func (s *Server) GetBlockByHeight(ctx context.Context, req *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	b, err := s.bc.BlockAtHeight(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return blockStruct(b)
}

// GetBalance returns the confirmed balance of an owner
func (s *Server) GetBalance(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "address is required")
	}
	return wrapperspb.Int64(s.bc.Balance(req.GetValue())), nil
}

// GetMempool returns the transactions waiting to be mined
func (s *Server) GetMempool(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(types.NewMempool(s.bc.Mempool()))
	return out, toStatus(err)
}

// Send queues a transfer
func (s *Server) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var send types.SendRequest
	if err := fromStruct(req, &send); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if send.From == "" || send.To == "" {
		return nil, status.Error(codes.InvalidArgument, "from and to are required")
	}

	spend, err := s.bc.Send(send.From, send.To, send.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(types.NewTransactionView(spend))
	return out, toStatus(err)
}

// Mine mines one block with the queued transactions
func (s *Server) Mine(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	miner := s.minerOrDefault(req.GetValue())
	if miner == "" {
		return nil, status.Error(codes.InvalidArgument, "miner address is required")
	}

	b, err := s.bc.MineBlock(ctx, miner)
	if err != nil {
		return nil, toStatus(err)
	}
	s.blocksMined.Add(1)
	s.notifyBlockSubscribers(b)
	return blockStruct(b)
}

// StartMining mines blocks in the background until StopMining
func (s *Server) StartMining(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	miner := s.minerOrDefault(req.GetValue())
	if miner == "" {
		return nil, status.Error(codes.InvalidArgument, "miner address is required")
	}

	s.miningMu.Lock()
	defer s.miningMu.Unlock()
	if s.stopMining != nil {
		return nil, status.Error(codes.FailedPrecondition, "mining already in progress")
	}

	miningCtx, cancel := context.WithCancel(context.Background())
	s.stopMining = cancel
	s.miningDone = make(chan struct{})
	go s.mineBlocks(miningCtx, miner, s.miningDone)
	return &emptypb.Empty{}, nil
}

// StopMining stops background mining and waits for the running attempt
func (s *Server) StopMining(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error) {
	s.stopMiningLoop()
	return &emptypb.Empty{}, nil
}

// SubscribeBlocks streams every block mined through this server
func (s *Server) SubscribeBlocks(req *emptypb.Empty, stream grpc.ServerStream) error {
	ch := make(chan *block.Block, 10)

	s.subsMu.Lock()
	s.blockSubs = append(s.blockSubs, ch)
	s.subsMu.Unlock()

	defer func() {
		s.subsMu.Lock()
		for i, sub := range s.blockSubs {
			if sub == ch {
				s.blockSubs = append(s.blockSubs[:i], s.blockSubs[i+1:]...)
				break
			}
		}
		s.subsMu.Unlock()
	}()

	for {
		select {
		case b := <-ch:
			out, err := blockStruct(b)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-s.quit:
			return status.Error(codes.Unavailable, "server is shutting down")
		}
	}
}

func (s *Server) minerOrDefault(miner string) string {
	if miner != "" {
		return miner
	}
	return s.defaultMiner
}

func (s *Server) mineBlocks(ctx context.Context, miner string, done chan struct{}) {
	defer close(done)
	log.Infof("Mining started for %s", miner)

	for {
		b, err := s.bc.MineBlock(ctx, miner)
		if err != nil {
			if ctx.Err() != nil {
				log.Infof("Mining stopped")
				return
			}
			log.Errorf("Mining error: %s", err)
			select {
			case <-ctx.Done():
				log.Infof("Mining stopped")
				return
			case <-time.After(miningRetryDelay):
			}
			continue
		}

		s.blocksMined.Add(1)
		log.Infof("Mined block #%d with hash %s", b.Height(), b.Hash())
		s.notifyBlockSubscribers(b)
	}
}

func (s *Server) stopMiningLoop() {
	s.miningMu.Lock()
	cancel, done := s.stopMining, s.miningDone
	s.stopMining, s.miningDone = nil, nil
	s.miningMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Server) notifyBlockSubscribers(b *block.Block) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for _, ch := range s.blockSubs {
		select {
		case ch <- b:
		default:
			// Skip if channel is full
		}
	}
}
