package crypto

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianxyz/fillbot/internal/domain"
)

var (
	testKeyA     = strings.Repeat("11", 32)
	testKeyB     = strings.Repeat("22", 32)
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func testDomain() Domain {
	return NewDomain(137, testContract)
}

func testOffer(kind domain.OfferKind) domain.Offer {
	o := domain.Offer{
		Kind:                   kind,
		Maker:                  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MakerAmount:            domain.NewAmount(100),
		TakerAmount:            domain.NewAmount(50),
		MinimumTakerFillAmount: domain.NewAmount(10),
		Expiry:                 time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Salt:                   big.NewInt(987654321),
	}
	if kind != domain.OfferKindCreatePool {
		o.PoolID = big.NewInt(42)
	}
	return o
}

func TestSignOffer_RecoverRoundTrip(t *testing.T) {
	d := testDomain()
	signer, err := NewSigner(testKeyA, d)
	require.NoError(t, err)
	verifier := NewVerifier(d)

	for _, kind := range []domain.OfferKind{
		domain.OfferKindCreatePool,
		domain.OfferKindAddLiquidity,
		domain.OfferKindRemoveLiquidity,
	} {
		offer := testOffer(kind)
		sig, err := signer.SignOffer(offer)
		require.NoError(t, err, "signing %s offer", kind)

		recovered, err := verifier.RecoverOfferSigner(offer, sig)
		require.NoError(t, err, "recovering %s offer", kind)
		assert.Equal(t, signer.Address(), recovered, "recovered address should match the signer for %s", kind)
	}
}

func TestSignOffer_SignatureFormat(t *testing.T) {
	signer, err := NewSigner(testKeyA, testDomain())
	require.NoError(t, err)

	sig, err := signer.SignOffer(testOffer(domain.OfferKindCreatePool))
	require.NoError(t, err)

	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	require.NoError(t, err)
	require.Len(t, raw, 65, "r || s || v")
	assert.Contains(t, []byte{27, 28}, raw[64], "recovery byte should be normalized to 27/28")
}

func TestRecoverOfferSigner_TamperedPayload(t *testing.T) {
	d := testDomain()
	signer, err := NewSigner(testKeyA, d)
	require.NoError(t, err)
	verifier := NewVerifier(d)

	offer := testOffer(domain.OfferKindCreatePool)
	sig, err := signer.SignOffer(offer)
	require.NoError(t, err)

	tampered := offer
	tampered.MakerAmount = domain.NewAmount(999)

	recovered, err := verifier.RecoverOfferSigner(tampered, sig)
	if err == nil {
		assert.NotEqual(t, signer.Address(), recovered, "tampered payload must not recover to the signer")
	}
}

func TestRecoverOfferSigner_WrongSigner(t *testing.T) {
	d := testDomain()
	signerA, err := NewSigner(testKeyA, d)
	require.NoError(t, err)
	signerB, err := NewSigner(testKeyB, d)
	require.NoError(t, err)
	verifier := NewVerifier(d)

	offer := testOffer(domain.OfferKindCreatePool)
	sig, err := signerB.SignOffer(offer)
	require.NoError(t, err)

	recovered, err := verifier.RecoverOfferSigner(offer, sig)
	require.NoError(t, err)
	assert.Equal(t, signerB.Address(), recovered)
	assert.NotEqual(t, signerA.Address(), recovered, "a different key must recover to a different address")
}

func TestRecoverOfferSigner_Malformed(t *testing.T) {
	verifier := NewVerifier(testDomain())
	offer := testOffer(domain.OfferKindCreatePool)

	_, err := verifier.RecoverOfferSigner(offer, "0x1234")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature, "truncated signature")

	_, err = verifier.RecoverOfferSigner(offer, "0x"+strings.Repeat("zz", 65))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature, "non-hex signature")
}

func TestOfferDigest_Deterministic(t *testing.T) {
	d := testDomain()
	offer := testOffer(domain.OfferKindAddLiquidity)

	d1, err := OfferDigest(d, offer)
	require.NoError(t, err)
	d2, err := OfferDigest(d, offer)
	require.NoError(t, err)
	assert.Equal(t, d1, d2, "same offer, same digest")

	other := offer
	other.Salt = big.NewInt(1)
	d3, err := OfferDigest(d, other)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3, "salt must change the digest")
}

func TestOfferDigest_DomainBinding(t *testing.T) {
	offer := testOffer(domain.OfferKindCreatePool)

	base, err := OfferDigest(NewDomain(137, testContract), offer)
	require.NoError(t, err)

	otherChain, err := OfferDigest(NewDomain(1, testContract), offer)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherChain, "chain id is part of the domain")

	otherContract, err := OfferDigest(NewDomain(137, common.HexToAddress("0x00000000000000000000000000000000deadbeef")), offer)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherContract, "verifying contract is part of the domain")
}

func TestOfferDigest_KindBinding(t *testing.T) {
	d := testDomain()
	add := testOffer(domain.OfferKindAddLiquidity)
	remove := testOffer(domain.OfferKindRemoveLiquidity)

	addDigest, err := OfferDigest(d, add)
	require.NoError(t, err)
	removeDigest, err := OfferDigest(d, remove)
	require.NoError(t, err)
	assert.NotEqual(t, addDigest, removeDigest, "identical fields under different kinds must hash differently")
}

func TestOfferDigest_RejectsIncompleteOffers(t *testing.T) {
	d := testDomain()

	noSalt := testOffer(domain.OfferKindCreatePool)
	noSalt.Salt = nil
	_, err := OfferDigest(d, noSalt)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters, "missing salt")

	noPool := testOffer(domain.OfferKindAddLiquidity)
	noPool.PoolID = nil
	_, err = OfferDigest(d, noPool)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters, "liquidity offer without pool id")

	badKind := testOffer(domain.OfferKindCreatePool)
	badKind.Kind = domain.OfferKind("swap")
	_, err = OfferDigest(d, badKind)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters, "unknown kind")
}

func TestOfferID_Format(t *testing.T) {
	id, err := OfferID(testDomain(), testOffer(domain.OfferKindCreatePool))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "0x"))
	assert.Len(t, id, 66, "0x + 32-byte digest")
}
