package chain

import (
	"fmt"
	"math/big"
	"strings"

	"dca-engine-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// NativeTokenAddress is the conventional placeholder for the chain's native asset.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

var (
	selectorBalanceOf = selector("balanceOf(address)")
	selectorApprove   = selector("approve(address,uint256)")
	selectorTransfer  = selector("transfer(address,uint256)")

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// IsNativeToken reports whether address is the native-asset placeholder.
func IsNativeToken(address string) bool {
	return strings.EqualFold(address, NativeTokenAddress)
}

// ValidateAddress checks that s is a 20-byte hex address.
func ValidateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("invalid address %q", s)
	}
	return nil
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return common.IsHexAddress(a) && common.IsHexAddress(b) && common.HexToAddress(a) == common.HexToAddress(b)
}

// IsZeroAddress reports whether s parses to 0x000...0.
func IsZeroAddress(s string) bool {
	return common.HexToAddress(s) == (common.Address{})
}

// EncodeBalanceOf builds calldata for balanceOf(owner).
func EncodeBalanceOf(owner string) ([]byte, error) {
	if err := ValidateAddress(owner); err != nil {
		return nil, err
	}
	return pack(selectorBalanceOf, common.HexToAddress(owner).Bytes()), nil
}

// EncodeApprove builds calldata for approve(spender, amount).
func EncodeApprove(spender string, amount *big.Int) ([]byte, error) {
	return encodeAddressAmount(selectorApprove, spender, amount)
}

// EncodeTransfer builds calldata for transfer(to, amount).
func EncodeTransfer(to string, amount *big.Int) ([]byte, error) {
	return encodeAddressAmount(selectorTransfer, to, amount)
}

func encodeAddressAmount(sel []byte, address string, amount *big.Int) ([]byte, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("amount %v out of uint256 range", amount)
	}
	return pack(sel, common.HexToAddress(address).Bytes(), amount.Bytes()), nil
}

// pack concatenates the selector with each argument left-padded to 32 bytes.
func pack(sel []byte, args ...[]byte) []byte {
	out := make([]byte, 0, len(sel)+32*len(args))
	out = append(out, sel...)
	for _, arg := range args {
		out = append(out, common.LeftPadBytes(arg, 32)...)
	}
	return out
}

// DecodeUint256 reads a single uint256 return value.
func DecodeUint256(ret []byte) (*big.Int, error) {
	if len(ret) < 32 {
		return nil, fmt.Errorf("short return data: %d bytes", len(ret))
	}
	return new(big.Int).SetBytes(ret[:32]), nil
}

// ApproveTransaction builds a zero-value approve call on token.
func ApproveTransaction(token, spender string, amount *big.Int) (models.ChainTransaction, error) {
	data, err := EncodeApprove(spender, amount)
	if err != nil {
		return models.ChainTransaction{}, err
	}
	return models.ChainTransaction{To: token, Data: hexutil.Encode(data), Value: "0x0"}, nil
}

// TransferTransaction builds a zero-value ERC-20 transfer call on token.
func TransferTransaction(token, to string, amount *big.Int) (models.ChainTransaction, error) {
	data, err := EncodeTransfer(to, amount)
	if err != nil {
		return models.ChainTransaction{}, err
	}
	return models.ChainTransaction{To: token, Data: hexutil.Encode(data), Value: "0x0"}, nil
}

// NormalizeValue returns v as 0x-prefixed hex. Decimal strings are converted;
// empty means zero.
func NormalizeValue(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "0x0", nil
	}
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		digits := strings.TrimLeft(v[2:], "0")
		if digits == "" {
			return "0x0", nil
		}
		n, err := hexutil.DecodeBig("0x" + digits)
		if err != nil {
			return "", fmt.Errorf("invalid hex value %q: %w", v, err)
		}
		return hexutil.EncodeBig(n), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("invalid value %q", v)
	}
	return hexutil.EncodeBig(n), nil
}
