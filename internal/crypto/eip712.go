package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/meridianxyz/fillbot/internal/domain"
)

const (
	// DomainName and DomainVersion identify the Meridian settlement domain
	// in every typed-data signature. Changing either invalidates all
	// outstanding offer signatures.
	DomainName    = "Meridian Protocol"
	DomainVersion = "1"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// OfferCreatePool(address maker,address taker,uint256 makerCollateralAmount,uint256 takerCollateralAmount,uint256 minimumTakerFillAmount,uint256 expiry,uint256 salt)
	offerCreatePoolTypeHash = ethcrypto.Keccak256(
		[]byte("OfferCreatePool(address maker,address taker,uint256 makerCollateralAmount,uint256 takerCollateralAmount,uint256 minimumTakerFillAmount,uint256 expiry,uint256 salt)"),
	)

	// OfferAddLiquidity(address maker,address taker,uint256 makerCollateralAmount,uint256 takerCollateralAmount,uint256 minimumTakerFillAmount,uint256 expiry,uint256 poolId,uint256 salt)
	offerAddLiquidityTypeHash = ethcrypto.Keccak256(
		[]byte("OfferAddLiquidity(address maker,address taker,uint256 makerCollateralAmount,uint256 takerCollateralAmount,uint256 minimumTakerFillAmount,uint256 expiry,uint256 poolId,uint256 salt)"),
	)

	// OfferRemoveLiquidity(address maker,address taker,uint256 makerCollateralAmount,uint256 positionTokenAmount,uint256 minimumTakerFillAmount,uint256 expiry,uint256 poolId,uint256 salt)
	offerRemoveLiquidityTypeHash = ethcrypto.Keccak256(
		[]byte("OfferRemoveLiquidity(address maker,address taker,uint256 makerCollateralAmount,uint256 positionTokenAmount,uint256 minimumTakerFillAmount,uint256 expiry,uint256 poolId,uint256 salt)"),
	)
)

// Domain is the EIP-712 signing context. The verifying contract is the
// deployed settlement contract, so signatures cannot be replayed against
// another deployment or chain.
type Domain struct {
	ChainID           int64
	VerifyingContract common.Address
}

// NewDomain builds the Meridian signing domain for one settlement deployment.
func NewDomain(chainID int64, verifyingContract common.Address) Domain {
	return Domain{ChainID: chainID, VerifyingContract: verifyingContract}
}

// Separator returns keccak256(abi.encode(typeHash, nameHash, versionHash,
// chainId, verifyingContract)).
func (d Domain) Separator() []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(DomainName)),
			ethcrypto.Keccak256([]byte(DomainVersion)),
			bigIntTo32Bytes(big.NewInt(d.ChainID)),
			common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
		),
	)
}

// OfferDigest computes the final EIP-712 digest for an offer:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
//
// The struct hash is keyed by the offer's kind; the three kinds share a
// field layout but sign under distinct type names, so a signature for one
// settlement action can never authorize another.
func OfferDigest(d Domain, offer domain.Offer) ([]byte, error) {
	structHash, err := offerStructHash(offer)
	if err != nil {
		return nil, err
	}
	return eip712Hash(d.Separator(), structHash), nil
}

// OfferID returns the hex-encoded offer digest, used as the offer's
// canonical identifier everywhere in this repo.
func OfferID(d Domain, offer domain.Offer) (string, error) {
	digest, err := OfferDigest(d, offer)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(digest), nil
}

// Signer holds a maker's key and produces offer signatures.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domain     Domain
	domainSep  []byte // cached separator
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, d Domain) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domain:     d,
		domainSep:  d.Separator(),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// OfferID returns the canonical identifier for an offer under the signer's
// domain.
func (s *Signer) OfferID(offer domain.Offer) (string, error) {
	return OfferID(s.domain, offer)
}

// SignOffer signs the offer's typed payload and returns a hex-encoded
// 65-byte signature (r || s || v, v in {27,28}).
func (s *Signer) SignOffer(offer domain.Offer) (string, error) {
	structHash, err := offerStructHash(offer)
	if err != nil {
		return "", err
	}
	digest := eip712Hash(s.domainSep, structHash)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: sign offer: %w", domain.ErrSigningFailed)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// Verifier recovers offer signers under a fixed domain.
type Verifier struct {
	domain    Domain
	domainSep []byte
}

// NewVerifier creates a Verifier for one settlement deployment.
func NewVerifier(d Domain) *Verifier {
	return &Verifier{domain: d, domainSep: d.Separator()}
}

// RecoverOfferSigner recovers the address that signed the offer's typed
// payload. Any decode or recovery failure reports ErrInvalidSignature; the
// caller compares the result to the offer's declared maker.
func (v *Verifier) RecoverOfferSigner(offer domain.Offer, signatureHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto: malformed signature: %w", domain.ErrInvalidSignature)
	}

	structHash, err := offerStructHash(offer)
	if err != nil {
		return common.Address{}, err
	}
	digest := eip712Hash(v.domainSep, structHash)

	// SigToPub expects the recovery byte in {0,1}.
	norm := make([]byte, 65)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(digest, norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover signer: %w", domain.ErrInvalidSignature)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// offerStructHash encodes and hashes the offer's typed payload under its
// kind's type hash. Liquidity kinds additionally bind the target pool id.
func offerStructHash(o domain.Offer) ([]byte, error) {
	if o.Salt == nil {
		return nil, fmt.Errorf("crypto: offer missing salt: %w", domain.ErrInvalidParameters)
	}

	fields := [][]byte{
		nil, // type hash, set below
		common.LeftPadBytes(o.Maker.Bytes(), 32),
		common.LeftPadBytes(o.Taker.Bytes(), 32),
		amountTo32Bytes(o.MakerAmount),
		amountTo32Bytes(o.TakerAmount),
		amountTo32Bytes(o.MinimumTakerFillAmount),
		bigIntTo32Bytes(big.NewInt(o.Expiry)),
	}

	switch o.Kind {
	case domain.OfferKindCreatePool:
		fields[0] = offerCreatePoolTypeHash
	case domain.OfferKindAddLiquidity, domain.OfferKindRemoveLiquidity:
		if o.PoolID == nil {
			return nil, fmt.Errorf("crypto: offer missing pool id: %w", domain.ErrInvalidParameters)
		}
		if o.Kind == domain.OfferKindAddLiquidity {
			fields[0] = offerAddLiquidityTypeHash
		} else {
			fields[0] = offerRemoveLiquidityTypeHash
		}
		fields = append(fields, bigIntTo32Bytes(o.PoolID))
	default:
		return nil, fmt.Errorf("crypto: offer kind %q: %w", o.Kind, domain.ErrInvalidParameters)
	}

	fields = append(fields, bigIntTo32Bytes(o.Salt))
	return ethcrypto.Keccak256(concatBytes(fields...)), nil
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

func amountTo32Bytes(a domain.Amount) []byte {
	b := a.Bytes32()
	return b[:]
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
