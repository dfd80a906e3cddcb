// Command sign-bundle builds, signs, and hex-encodes a sample bundle,
// then verifies its signature locally. Useful for exercising a running
// node without a wallet frontend.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/slipstream/params"
	"github.com/uhyunpark/slipstream/pkg/bundle"
	"github.com/uhyunpark/slipstream/pkg/crypto"
)

func main() {
	cfg := params.LoadFromEnv("")
	separator := crypto.Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           cfg.Domain.ChainID,
		VerifyingContract: common.HexToAddress(cfg.Domain.VerifyingContract),
	}.Separator()

	var signer *crypto.Signer
	var err error
	if key := os.Getenv("PRIVATE_KEY"); key != "" {
		signer, err = crypto.FromPrivateKeyHex(key)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", signer.Address().Hex())
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

	asset0 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	asset1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	// 1.5 in ray fixed point
	price := uint256.MustFromDecimal("1500000000000000000000000000")

	b := bundle.NewBuilder()
	i0 := b.AddAsset(asset0)
	i1 := b.AddAsset(asset1)
	pair := b.AddPair(i0, i1, price)

	order := &bundle.UserBuffer{
		Variant:           bundle.MakeUserVariant(true, false, false, false, false, true, true),
		RefID:             1,
		AssetIn:           asset0,
		AssetOut:          asset1,
		MinPrice:          uint256.NewInt(0),
		Validity:          bundle.FlashValidity{ValidForBlock: nextRound()},
		Quantity:          uint256.NewInt(1000),
		MaxExtraFeeAsset0: uint256.NewInt(10),
		ExtraFeeAsset0:    uint256.NewInt(5),
	}

	fmt.Println("Order Details:")
	fmt.Printf("  AssetIn:  %s\n", order.AssetIn.Hex())
	fmt.Printf("  AssetOut: %s\n", order.AssetOut.Hex())
	fmt.Printf("  Quantity: %s\n", order.Quantity.Dec())
	fmt.Printf("  Price:    %s (ray)\n", price.Dec())
	fmt.Printf("  ValidFor: round %d\n\n", nextRound())

	structHash := order.StructHash()
	digest := crypto.TypedDigest(separator, structHash)
	sig, err := signer.Sign(digest.Bytes())
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Struct Hash: %s\n", structHash.Hex())
	fmt.Printf("Signature:   0x%x\n\n", sig)

	b.AddUserOrder(order, pair, bundle.Signature{Bytes: sig})
	payload, err := b.Build()
	if err != nil {
		fmt.Printf("Error building bundle: %v\n", err)
		os.Exit(1)
	}

	recovered, err := crypto.RecoverAddress(digest.Bytes(), sig)
	if err != nil || recovered != signer.Address() {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
	fmt.Printf("  Signer: %s\n\n", recovered.Hex())

	fmt.Println("To submit this bundle:")
	fmt.Printf("  POST http://localhost%s/api/v1/bundles\n", cfg.Node.APIAddr)
	fmt.Println("  Content-Type: application/json")
	fmt.Printf("  Body: {\"payload\": \"0x%s\"}\n", hex.EncodeToString(payload))
}

// nextRound returns the round the sample flash order targets,
// overridable to match a running node.
func nextRound() uint64 {
	if v := os.Getenv("TARGET_ROUND"); v != "" {
		var round uint64
		if _, err := fmt.Sscanf(v, "%d", &round); err == nil {
			return round
		}
	}
	return 1
}
