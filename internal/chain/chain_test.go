package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/shopspring/decimal"
)

func TestWeiConversion(t *testing.T) {
	wei := ToWei(decimal.RequireFromString("1.5"))
	if wei.String() != "1500000000000000000" {
		t.Fatalf("1.5 tCORE2 = 1.5e18 wei, получили %s", wei)
	}
	if got := FromWei(wei); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("обратно ожидали 1.5, получили %s", got)
	}
	// меньше wei отбрасывается
	if ToWei(decimal.RequireFromString("0.0000000000000000019")).String() != "1" {
		t.Fatal("дробь меньше wei должна отбрасываться")
	}
	if !FromWei(nil).IsZero() {
		t.Fatal("nil = 0")
	}
}

func TestExplorerTxURL(t *testing.T) {
	if got := ExplorerTxURL(ChainIDCoreTestnet2, "0xabc"); got != "https://scan.test2.btcs.network/tx/0xabc" {
		t.Fatalf("получили %s", got)
	}
	if got := ExplorerTxURL(ChainIDCoreTestnet, "0xabc"); got != "https://scan.test.btcs.network/tx/0xabc" {
		t.Fatalf("получили %s", got)
	}
}

func TestValidateAddress(t *testing.T) {
	key, _ := crypto.GenerateKey()
	checksummed := crypto.PubkeyToAddress(key.PublicKey).Hex()

	valid := []string{
		checksummed,
		"0x" + common.Bytes2Hex(common.HexToAddress(checksummed).Bytes()), // нижний регистр
	}
	for _, a := range valid {
		if !ValidateAddress(a) {
			t.Fatalf("адрес %s валиден", a)
		}
	}

	invalid := []string{"", "0x123", "not-an-address", "0xZZ34567890abcdef1234567890abcdef12345678"}
	for _, a := range invalid {
		if ValidateAddress(a) {
			t.Fatalf("адрес %q не валиден", a)
		}
	}

	if _, err := NormalizeAddress("0x0000000000000000000000000000000000000000"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("нулевой адрес не принимаем, получили %v", err)
	}
	a, err := NormalizeAddress(" " + checksummed + " ")
	if err != nil || a.Hex() != checksummed {
		t.Fatalf("ожидали %s, получили %s %v", checksummed, a.Hex(), err)
	}
}

func TestParsePrivateKey(t *testing.T) {
	key, _ := crypto.GenerateKey()
	raw := common.Bytes2Hex(crypto.FromECDSA(key))

	for _, in := range []string{raw, "0x" + raw} {
		got, err := ParsePrivateKey(in)
		if err != nil {
			t.Fatalf("ключ %q: %v", in, err)
		}
		if addressOf(got) != addressOf(key) {
			t.Fatal("адрес ключа не совпал")
		}
	}
	if _, err := ParsePrivateKey("nope"); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("ожидали ErrInvalidPrivateKey, получили %v", err)
	}
}

func TestVerifyChainID(t *testing.T) {
	if err := VerifyChainID(1114, 1114); err != nil {
		t.Fatal(err)
	}
	if err := VerifyChainID(1114, 1); !errors.Is(err, ErrWrongChain) {
		t.Fatalf("ожидали ErrWrongChain, получили %v", err)
	}
}

func TestDecodeGameStatus(t *testing.T) {
	parsed, err := ParseMinesABI()
	if err != nil {
		t.Fatal(err)
	}

	var tiles [domain.BoardSize]rawTile
	tiles[3] = rawTile{ActualValue: false, IsRevealed: true}
	tiles[9] = rawTile{ActualValue: true, IsRevealed: true}

	seed := common.HexToHash("0xfeed")
	data, err := parsed.Methods[methodGetGameStatus].Outputs.Pack(
		big.NewInt(2_000_000_000_000_000_000),
		uint8(5),
		[32]byte(seed),
		uint8(2),
		tiles,
		false,
		false,
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	st, err := decodeGameStatus(parsed, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.BetAmount.String() != "2000000000000000000" || st.MineCount != 5 || st.RevealedCount != 2 {
		t.Fatalf("неверные поля: %+v", st)
	}
	if st.Seed != seed {
		t.Fatalf("seed %s, ожидали %s", st.Seed.Hex(), seed.Hex())
	}
	if !st.Revealed[3].IsRevealed || st.Revealed[3].ActualValue {
		t.Fatal("ячейка 3 открыта и безопасна")
	}
	if !st.Revealed[9].ActualValue || st.Active {
		t.Fatal("ячейка 9 мина, игра не активна")
	}

	if _, err := decodeGameStatus(parsed, []byte{1, 2, 3}); err == nil {
		t.Fatal("мусор не должен разбираться")
	}
}

func TestPackCalls(t *testing.T) {
	parsed, err := ParseMinesABI()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parsed.Pack(methodPlaceBet, uint8(3)); err != nil {
		t.Fatalf("placeBet: %v", err)
	}
	if _, err := parsed.Pack(methodRevealTile, uint8(24)); err != nil {
		t.Fatalf("revealTile: %v", err)
	}
	if _, err := parsed.Pack(methodCashOut); err != nil {
		t.Fatalf("cashOut: %v", err)
	}
	if !parsed.Methods[methodPlaceBet].IsPayable() {
		t.Fatal("placeBet принимает ставку в value")
	}
}
