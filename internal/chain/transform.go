package chain

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"eventListener/internal/model"
)

func buildEventRecord(contract, event string, log types.Log, args map[string]interface{}) model.EventRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.EventRecord{
		Event:       event,
		Contract:    contract,
		Address:     log.Address.Hex(),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    model.Uint64(uint64(log.Index)),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Args:        args,
		Removed:     log.Removed,
	}
}
