package ingest

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/rawblock/whale-classifier/internal/models"
)

// erc20TransferABI is the ABI of the canonical ERC-20
// Transfer(address,address,uint256) event.
const erc20TransferABI = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}]`

// ChainLogStream is the "chain log stream" source kind: it subscribes to
// ERC-20 Transfer events over a push transport (ethclient's log
// subscription) and emits one RawTransfer per decoded log.
type ChainLogStream struct {
	client     *ethclient.Client
	chain      models.Chain
	watchTokens []common.Address
	transferEvent abi.Event
}

func NewChainLogStream(rpcURL string, chain models.Chain, watchTokens []common.Address) (*ChainLogStream, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain log stream RPC: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("parse transfer ABI: %w", err)
	}
	return &ChainLogStream{
		client:        client,
		chain:         chain,
		watchTokens:   watchTokens,
		transferEvent: parsed.Events["Transfer"],
	}, nil
}

func (s *ChainLogStream) ID() string { return "chain-log-stream-" + string(s.chain) }

func (s *ChainLogStream) Run(ctx context.Context, out chan<- models.RawTransfer) error {
	query := ethereum.FilterQuery{
		Addresses: s.watchTokens,
		Topics:    [][]common.Hash{{s.transferEvent.ID}},
	}

	logs := make(chan types.Log, 256)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("subscribe filter logs: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("log subscription error: %w", err)
		case vLog := <-logs:
			t, err := s.decode(ctx, vLog)
			if err != nil {
				log.Printf("[ChainLogStream] decode error on %s: %v", vLog.TxHash.Hex(), err)
				continue
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *ChainLogStream) decode(ctx context.Context, vLog types.Log) (models.RawTransfer, error) {
	if len(vLog.Topics) < 3 {
		return models.RawTransfer{}, fmt.Errorf("transfer log missing indexed topics")
	}

	var value *big.Int
	unpacked, err := s.transferEvent.Inputs.NonIndexed().Unpack(vLog.Data)
	if err != nil || len(unpacked) == 0 {
		value = new(big.Int)
	} else {
		var ok bool
		value, ok = unpacked[0].(*big.Int)
		if !ok {
			value = new(big.Int)
		}
	}

	block, err := s.client.HeaderByHash(ctx, vLog.BlockHash)
	blockTime := time.Now().UTC()
	if err == nil && block != nil {
		blockTime = time.Unix(int64(block.Time), 0).UTC()
	}

	logIdx := int(vLog.Index)
	return models.RawTransfer{
		SourceID:  s.ID(),
		Chain:     s.chain,
		TxHash:    vLog.TxHash.Hex(),
		LogIndex:  &logIdx,
		BlockTime: blockTime,
		FromAddr:  common.HexToAddress(vLog.Topics[1].Hex()).Hex(),
		ToAddr:    common.HexToAddress(vLog.Topics[2].Hex()).Hex(),
		TokenAddr: vLog.Address.Hex(),
		Amount:    decimal.NewFromBigInt(value, 0),
	}, nil
}
