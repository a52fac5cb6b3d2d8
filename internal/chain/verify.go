package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidAddress    = errors.New("неверный адрес")
	ErrInvalidPrivateKey = errors.New("неверный приватный ключ")
	ErrWrongChain        = errors.New("кошелек подключен к другой сети")
)

// ValidateAddress проверяет hex адрес. Адрес в смешанном регистре должен проходить checksum
func ValidateAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return false
	}
	body := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(addr).Hex() == "0x"+body
}

// NormalizeAddress приводит адрес к checksum виду
func NormalizeAddress(addr string) (common.Address, error) {
	if !ValidateAddress(addr) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	a := common.HexToAddress(strings.TrimSpace(addr))
	if a == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: нулевой адрес", ErrInvalidAddress)
	}
	return a, nil
}

// ParsePrivateKey hex ключ с 0x или без
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key, nil
}

// VerifyChainID сеть RPC должна совпадать с настроенной
func VerifyChainID(expected, actual int64) error {
	if expected != actual {
		return fmt.Errorf("%w: ожидали %d, получили %d", ErrWrongChain, expected, actual)
	}
	return nil
}
