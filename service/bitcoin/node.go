package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
	"github.com/dabberpk/BlockchainAccessLayer/service/metrics"
)

// NodeClient is the set of node RPC operations the adapter needs. It exists
// so the monitoring engine can be tested against a mock without a running
// bitcoind.
type NodeClient interface {
	// GetTransaction returns the wallet's view of a transaction, including
	// its current confirmation count. Unknown transactions surface as an
	// RPC "no transaction info" error, which isNoTxInfo recognizes.
	GetTransaction(ctx context.Context, txID string) (*btcjson.GetTransactionResult, error)

	// GetRawTransactionVerbose returns the decoded raw transaction with its
	// inputs, outputs, and output addresses. Requires a tx-indexed node.
	GetRawTransactionVerbose(ctx context.Context, txID string) (*btcjson.TxRawResult, error)

	// SendToAddress submits a value transfer and returns the new
	// transaction id.
	SendToAddress(ctx context.Context, address btcutil.Address, amount btcutil.Amount) (string, error)

	// NodeVersion returns the node's version string, serving as a
	// liveness probe.
	NodeVersion(ctx context.Context) (string, error)
}

// NodeConfig carries the connection parameters for a bitcoind/btcd node
// with wallet support and websocket notifications enabled.
type NodeConfig struct {
	Host       string
	User       string
	Pass       string
	DisableTLS bool
}

// Node wraps an rpcclient websocket connection, implements NodeClient, and
// feeds node notifications into a Hub through a single dispatcher
// goroutine. The dispatcher keeps event delivery ordered and moves wallet
// filtering off the rpcclient callback goroutine, where blocking client
// calls are not allowed.
type Node struct {
	rpc     *rpcclient.Client
	hub     *Hub
	metrics *metrics.Metrics
	logger  *slog.Logger

	blockNtfns chan BlockEvent
	txNtfns    chan string
	quit       chan struct{}
}

// ConnectNode establishes the websocket connection, registers for block and
// transaction notifications, and starts the event dispatcher.
func ConnectNode(cfg NodeConfig, hub *Hub, m *metrics.Metrics, logger *slog.Logger) (*Node, error) {
	n := &Node{
		hub:        hub,
		metrics:    m,
		logger:     logger,
		blockNtfns: make(chan BlockEvent, 64),
		txNtfns:    make(chan string, 256),
		quit:       make(chan struct{}),
	}

	handlers := &rpcclient.NotificationHandlers{
		OnBlockConnected: func(hash *chainhash.Hash, height int32, _ time.Time) {
			select {
			case n.blockNtfns <- BlockEvent{Hash: hash.String(), Height: int64(height)}:
			case <-n.quit:
			}
		},
		OnTxAcceptedVerbose: func(tx *btcjson.TxRawResult) {
			select {
			case n.txNtfns <- tx.Txid:
			case <-n.quit:
			}
		},
	}

	connCfg := &rpcclient.ConnConfig{
		Host:       cfg.Host,
		Endpoint:   "ws",
		User:       cfg.User,
		Pass:       cfg.Pass,
		DisableTLS: cfg.DisableTLS,
	}

	rpc, err := rpcclient.New(connCfg, handlers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bitcoin node: %w", err)
	}
	n.rpc = rpc

	if err := rpc.NotifyBlocks(); err != nil {
		rpc.Shutdown()
		return nil, fmt.Errorf("failed to register for block notifications: %w", err)
	}
	if err := rpc.NotifyNewTransactions(true); err != nil {
		rpc.Shutdown()
		return nil, fmt.Errorf("failed to register for transaction notifications: %w", err)
	}

	go n.dispatch()

	logger.Info("connected to bitcoin node", "host", cfg.Host)
	return n, nil
}

// dispatch processes node notifications sequentially until Shutdown.
func (n *Node) dispatch() {
	for {
		select {
		case ev := <-n.blockNtfns:
			n.hub.PublishBlock(ev)
		case txid := <-n.txNtfns:
			n.publishIfWalletTx(txid)
		case <-n.quit:
			return
		}
	}
}

// publishIfWalletTx narrows the node-wide mempool feed down to wallet
// transactions: only transactions the wallet knows about become wallet
// change events.
func (n *Node) publishIfWalletTx(txid string) {
	details, err := n.GetTransaction(context.Background(), txid)
	if err != nil {
		if isNoTxInfo(err) {
			return // not a wallet transaction
		}
		n.logger.Warn("failed to look up accepted transaction", "txid", txid, "error", err)
		return
	}
	n.hub.PublishWalletTx(details)
}

// Shutdown stops the dispatcher and tears down the RPC connection.
func (n *Node) Shutdown() {
	close(n.quit)
	n.rpc.Shutdown()
	n.logger.Info("bitcoin node connection closed")
}

func (n *Node) GetTransaction(_ context.Context, txID string) (*btcjson.GetTransactionResult, error) {
	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return nil, chain.Parameterf("invalid transaction id %q: %v", txID, err)
	}

	start := time.Now()
	res, err := n.rpc.GetTransaction(hash)
	n.recordCall("gettransaction", start, err)
	return res, err
}

func (n *Node) GetRawTransactionVerbose(_ context.Context, txID string) (*btcjson.TxRawResult, error) {
	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return nil, chain.Parameterf("invalid transaction id %q: %v", txID, err)
	}

	start := time.Now()
	res, err := n.rpc.GetRawTransactionVerbose(hash)
	n.recordCall("getrawtransaction", start, err)
	return res, err
}

func (n *Node) SendToAddress(_ context.Context, address btcutil.Address, amount btcutil.Amount) (string, error) {
	start := time.Now()
	hash, err := n.rpc.SendToAddress(address, amount)
	n.recordCall("sendtoaddress", start, err)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

func (n *Node) NodeVersion(_ context.Context) (string, error) {
	start := time.Now()
	info, err := n.rpc.GetNetworkInfo()
	n.recordCall("getnetworkinfo", start, err)
	if err != nil {
		return "", err
	}
	return info.SubVersion, nil
}

func (n *Node) recordCall(method string, start time.Time, err error) {
	if n.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	n.metrics.RecordRPCCall(method, status, time.Since(start).Seconds())
}

// isNoTxInfo reports whether err is the node telling us it has no
// information about the requested transaction (bitcoind answers wallet
// lookups for unknown ids with RPC code -5).
func isNoTxInfo(err error) bool {
	var rpcErr *btcjson.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == btcjson.ErrRPCNoTxInfo || rpcErr.Code == btcjson.ErrRPCInvalidAddressOrKey
}

// translateNodeError maps an RPC failure onto the layer's error kinds: a
// structured RPC error means the node rejected the request, anything else
// is a transport fault.
func translateNodeError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return &chain.InvalidTransactionError{Err: err}
	}
	var paramErr *chain.ParameterError
	if errors.As(err, &paramErr) {
		return err
	}
	return &chain.NodeUnreachableError{Err: err}
}
