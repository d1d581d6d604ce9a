package chain

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20EventsABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "spender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "Approval",
    "type": "event"
  }
]`

var (
	erc20EventsABI     abi.ABI
	erc20EventsABIOnce sync.Once
	erc20EventsABIErr  error
)

// ERC20ABI returns the parsed ERC-20 event ABI, used when a contract has no
// ABI file configured.
func ERC20ABI() (abi.ABI, error) {
	erc20EventsABIOnce.Do(func() {
		erc20EventsABI, erc20EventsABIErr = abi.JSON(strings.NewReader(erc20EventsABIJSON))
	})
	return erc20EventsABI, erc20EventsABIErr
}

// LoadABI parses a JSON ABI file.
func LoadABI(path string) (abi.ABI, error) {
	file, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("open abi: %w", err)
	}
	defer file.Close()

	parsed, err := abi.JSON(file)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi %s: %w", path, err)
	}
	return parsed, nil
}
