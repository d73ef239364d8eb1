// Package revelation builds and proves the recursive-composition circuit
// binding a query-aggregation proof and a block-database proof into one
// statement: the revealed keys hash to the digest the query side committed
// to, the revealed block range is the range the query side claims, the
// query ran against a root the database attests, and the database is fresh
// enough to cover the queried range.
//
// Sub-proofs are Groth16 proofs over BLS12-377; the revelation circuit is
// compiled over BW6-761 so both are verified natively through the 2-chain.
// The emitted proof feeds the downstream pairing-based wrapping step.
package revelation

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/sw_bls12377"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/std/math/emulated"
	stdgroth16 "github.com/consensys/gnark/std/recursion/groth16"

	"github.com/zkrange/revelation/blockdb"
	"github.com/zkrange/revelation/keyset"
	"github.com/zkrange/revelation/queryagg"
)

// Inner-curve instantiation of the recursion gadget.
type (
	// ScalarField is the scalar field of the inner curve, emulated inside
	// the revelation circuit.
	ScalarField = sw_bls12377.ScalarField
	// InnerProof is the in-circuit form of a sub-proof.
	InnerProof = stdgroth16.Proof[sw_bls12377.G1Affine, sw_bls12377.G2Affine]
	// InnerVerifyingKey is the in-circuit form of a sub-proof verifying key.
	InnerVerifyingKey = stdgroth16.VerifyingKey[sw_bls12377.G1Affine, sw_bls12377.G2Affine, sw_bls12377.GT]
	// InnerWitness is the in-circuit form of a sub-proof's public inputs.
	InnerWitness = stdgroth16.Witness[ScalarField]
)

// blockNumberBits bounds block numbers; ranges are bounded by this fixed
// width rather than by separate range checks.
const blockNumberBits = 32

// circuit is the revelation circuit. Field order fixes the public-input
// layout consumed downstream (see publicinputs.go): packed keys, occupancy,
// min block, max block, imported database inputs, imported query inputs.
type circuit struct {
	PackedKeys    [][keyset.NumKeyLimbs]frontend.Variable `gnark:",public"`
	Occupancy     frontend.Variable                       `gnark:",public"`
	QueryMinBlock frontend.Variable                       `gnark:",public"`
	QueryMaxBlock frontend.Variable                       `gnark:",public"`
	DBWitness     InnerWitness                            `gnark:",public"`
	QueryWitness  InnerWitness                            `gnark:",public"`

	DBProof       InnerProof
	QueryProof    InnerProof
	QuerySelector frontend.Variable

	// verifying keys are circuit constants, fixed at build time
	queryKeys []InnerVerifyingKey `gnark:"-"`
	dbKey     InnerVerifyingKey   `gnark:"-"`
}

func (c *circuit) Define(api frontend.API) error {
	verifier, err := stdgroth16.NewVerifier[ScalarField, sw_bls12377.G1Affine, sw_bls12377.G2Affine, sw_bls12377.GT](api)
	if err != nil {
		return fmt.Errorf("new verifier: %w", err)
	}

	// database side: the proof must verify under the single key fixed at
	// build time, rejecting proofs from any other circuit shape
	if err := verifier.AssertProof(c.dbKey, c.DBProof, c.DBWitness); err != nil {
		return fmt.Errorf("assert block-db proof: %w", err)
	}

	// query side: the proof must verify under one of the keys of the
	// query-aggregation circuit set, located by the selector
	queryKey, err := verifier.SwitchVerificationKey(c.QuerySelector, c.queryKeys)
	if err != nil {
		return fmt.Errorf("switch verification key: %w", err)
	}
	if err := verifier.AssertProof(queryKey, c.QueryProof, c.QueryWitness); err != nil {
		return fmt.Errorf("assert query proof: %w", err)
	}

	dbPI, err := blockdb.WiresFrom(c.DBWitness.Public)
	if err != nil {
		return err
	}
	queryPI, err := queryagg.WiresFrom(c.QueryWitness.Public)
	if err != nil {
		return err
	}
	return c.bind(api, dbPI, queryPI)
}

// bind ties the revealed values to the public inputs imported from the two
// verified sub-proofs.
func (c *circuit) bind(api frontend.API, dbPI blockdb.Wires, queryPI queryagg.Wires) error {
	field, err := emulated.NewField[ScalarField](api)
	if err != nil {
		return fmt.Errorf("new emulated field: %w", err)
	}
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return fmt.Errorf("new mimc: %w", err)
	}

	// digest of the revealed keys: per-key MiMC over the packed limbs,
	// summed over the first Occupancy slots
	api.AssertIsLessOrEqual(c.Occupancy, len(c.PackedKeys))
	active := frontend.Variable(1)
	digest := frontend.Variable(0)
	for i := range c.PackedKeys {
		reached := api.IsZero(api.Sub(c.Occupancy, i))
		active = api.Mul(active, api.Sub(1, reached))
		hasher.Reset()
		hasher.Write(c.PackedKeys[i][:]...)
		digest = api.Add(digest, api.Mul(active, hasher.Sum()))
		// slots past occupancy stay zero-padded
		padded := api.Sub(1, active)
		for j := range c.PackedKeys[i] {
			api.AssertIsEqual(api.Mul(padded, c.PackedKeys[i][j]), 0)
		}
	}

	// the recomputed digest equals the digest the query side committed to,
	// imported as two bounded limbs
	digestHiBits := api.Compiler().FieldBitLen() - queryagg.DigestLoBits
	lo := importBounded(api, field, queryPI.DigestLo(), queryagg.DigestLoBits)
	hi := importBounded(api, field, queryPI.DigestHi(), digestHiBits)
	shift := new(big.Int).Lsh(big.NewInt(1), queryagg.DigestLoBits)
	api.AssertIsEqual(api.Add(lo, api.Mul(hi, shift)), digest)

	// the revealed block range equals the range the query side claims
	api.AssertIsLessOrEqual(c.QueryMinBlock, c.QueryMaxBlock)
	maxBlock := importBounded(api, field, queryPI.BlockNumber(), blockNumberBits)
	api.AssertIsEqual(maxBlock, c.QueryMaxBlock)
	blockRange := importBounded(api, field, queryPI.BlockRange(), blockNumberBits)
	api.AssertIsEqual(blockRange, api.Sub(c.QueryMaxBlock, c.QueryMinBlock))

	// the query ran against a root the database attests
	field.AssertIsEqual(queryPI.Root(), dbPI.LastRoot())

	// freshness: the database has folded in every block the query covers
	field.AssertIsLessOrEqual(queryPI.BlockNumber(), dbPI.LastBlockNumber())

	return nil
}

// importBounded brings an imported scalar into the native field, asserting
// it fits in nbBits.
func importBounded(api frontend.API, field *emulated.Field[ScalarField], e *emulated.Element[ScalarField], nbBits int) frontend.Variable {
	bits := field.ToBits(e)
	for _, b := range bits[nbBits:] {
		api.AssertIsEqual(b, 0)
	}
	return api.FromBinary(bits[:nbBits]...)
}
