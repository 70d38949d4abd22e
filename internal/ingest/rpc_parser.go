package ingest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/rawblock/whale-classifier/internal/models"
)

const swapEventABI = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"sender","type":"address"},{"indexed":false,"name":"amount0In","type":"uint256"},{"indexed":false,"name":"amount1In","type":"uint256"},{"indexed":false,"name":"amount0Out","type":"uint256"},{"indexed":false,"name":"amount1Out","type":"uint256"},{"indexed":true,"name":"to","type":"address"}],"name":"Swap","type":"event"}]`

// RPCParser is the "on-chain RPC parser" source kind: given a tx_hash, it
// decodes logs using known event signatures (Transfer, Swap) and emits one
// RawTransfer per interesting log. Unlike the push-based ChainLogStream,
// this is request-driven — TxHashes feeds it work.
type RPCParser struct {
	client   *ethclient.Client
	chain    models.Chain
	transfer abi.Event
	swap     abi.Event
	TxHashes chan common.Hash
}

func NewRPCParser(rpcURL string, chain models.Chain) (*RPCParser, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc parser RPC: %w", err)
	}
	transferABI, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("parse transfer ABI: %w", err)
	}
	swapABI, err := abi.JSON(strings.NewReader(swapEventABI))
	if err != nil {
		return nil, fmt.Errorf("parse swap ABI: %w", err)
	}
	return &RPCParser{
		client:   client,
		chain:    chain,
		transfer: transferABI.Events["Transfer"],
		swap:     swapABI.Events["Swap"],
		TxHashes: make(chan common.Hash, 256),
	}, nil
}

func (p *RPCParser) ID() string { return "on-chain-rpc-parser-" + string(p.chain) }

func (p *RPCParser) Run(ctx context.Context, out chan<- models.RawTransfer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case hash := <-p.TxHashes:
			if err := p.decodeTx(ctx, hash, out); err != nil {
				continue
			}
		}
	}
}

func (p *RPCParser) decodeTx(ctx context.Context, hash common.Hash, out chan<- models.RawTransfer) error {
	receipt, err := p.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return fmt.Errorf("fetch receipt %s: %w", hash.Hex(), err)
	}
	if receipt.Status == 0 {
		return nil // reverted: phase abstains, nothing to emit
	}

	block, err := p.client.HeaderByHash(ctx, receipt.BlockHash)
	blockTime := time.Now().UTC()
	if err == nil && block != nil {
		blockTime = time.Unix(int64(block.Time), 0).UTC()
	}

	for _, vLog := range receipt.Logs {
		if len(vLog.Topics) == 0 {
			continue
		}
		switch vLog.Topics[0] {
		case p.transfer.ID:
			if len(vLog.Topics) < 3 {
				continue
			}
			value := new(big.Int)
			if unpacked, err := p.transfer.Inputs.NonIndexed().Unpack(vLog.Data); err == nil && len(unpacked) > 0 {
				if v, ok := unpacked[0].(*big.Int); ok {
					value = v
				}
			}
			logIdx := int(vLog.Index)
			t := models.RawTransfer{
				SourceID:  p.ID(),
				Chain:     p.chain,
				TxHash:    hash.Hex(),
				LogIndex:  &logIdx,
				BlockTime: blockTime,
				FromAddr:  common.HexToAddress(vLog.Topics[1].Hex()).Hex(),
				ToAddr:    common.HexToAddress(vLog.Topics[2].Hex()).Hex(),
				TokenAddr: vLog.Address.Hex(),
				Amount:    decimal.NewFromBigInt(value, 0),
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		case p.swap.ID:
			// Swap logs are not emitted: the fan-in only carries the
			// Transfer legs as RawTransfer records. Swap semantics reach
			// classification only through P3's injected ReceiptDecoder.
			continue
		}
	}
	return nil
}
