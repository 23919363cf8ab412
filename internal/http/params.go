package http

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const walletHeader = "X-Wallet-Address"

var zeroAddress common.Address

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address", field)
	}
	return common.HexToAddress(value), nil
}

func parsePath(raw []string) ([]common.Address, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("path must contain at least two tokens")
	}
	path := make([]common.Address, len(raw))
	for i, s := range raw {
		addr, err := parseAddress(fmt.Sprintf("path[%d]", i), s)
		if err != nil {
			return nil, err
		}
		path[i] = addr
	}
	return path, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid %s: must be a positive integer", field)
	}
	return amount, nil
}

// callerAddress resolves the acting wallet from the X-Wallet-Address header,
// falling back to an explicit body field when provided.
func callerAddress(c *gin.Context, bodyField string) (common.Address, error) {
	if v := c.GetHeader(walletHeader); v != "" {
		return parseAddress("wallet", v)
	}
	if bodyField != "" {
		return parseAddress("wallet", bodyField)
	}
	return common.Address{}, fmt.Errorf("missing %s header", walletHeader)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func hexPath(path []common.Address) []string {
	out := make([]string, len(path))
	for i, a := range path {
		out[i] = a.Hex()
	}
	return out
}
