package revelation

import (
	"bytes"
	"math/big"
	"sync"
	"testing"

	fr_bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	fr_bw6761 "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	"github.com/consensys/gnark/test"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/zkrange/revelation/blockdb"
	"github.com/zkrange/revelation/circuitset"
	"github.com/zkrange/revelation/internal/testfamily"
	"github.com/zkrange/revelation/queryagg"
	"github.com/zkrange/revelation/subproof"
)

const (
	testMaxKeys        = 5
	testBlock   uint64 = 5594951
	testMapSlot uint64 = 1
	testLenSlot uint64 = 2
)

var (
	testContract  = common.HexToAddress("0xb90ed61bffed1df72f2ceebd965198ad57adfcbd")
	testUser      = common.HexToAddress("0x21471c9771c39149b1e42483a785a49f3873d0a5")
	testBlockHash = [32]byte{
		59, 29, 137, 127, 105, 222, 146, 7, 197, 154, 29, 147, 160, 158, 243, 163,
		194, 164, 70, 74, 21, 84, 190, 107, 170, 77, 180, 48, 171, 56, 194, 78,
	}
)

func testRoot(v uint64) fr_bls12377.Element {
	var e fr_bls12377.Element
	e.SetUint64(v)
	return e
}

var inner struct {
	once  sync.Once
	query *testfamily.Family
	db    *testfamily.Family
	err   error
}

// testFamilies compiles and sets up the two synthetic sub-proof families,
// once per test binary.
func testFamilies(t *testing.T) (query, db *testfamily.Family) {
	t.Helper()
	inner.once.Do(func() {
		var g errgroup.Group
		g.Go(func() (err error) {
			inner.query, err = testfamily.New("queryagg", queryagg.NbPublicInputs, 2)
			return err
		})
		g.Go(func() (err error) {
			inner.db, err = testfamily.New("blockdb", blockdb.NbPublicInputs, 2)
			return err
		})
		inner.err = g.Wait()
	})
	require.NoError(t, inner.err)
	return inner.query, inner.db
}

// statements bundles the two sub-proof statements and the raw keys the
// query side committed to.
type statements struct {
	keys  [][]byte
	query queryagg.PublicInputs
	db    blockdb.PublicInputs
}

func defaultStatements(t *testing.T) statements {
	t.Helper()
	keys := make([][]byte, testMaxKeys)
	for i := range keys {
		keys[i] = make([]byte, 32)
	}
	digest, err := queryagg.Digest(keys)
	require.NoError(t, err)
	return statements{
		keys: keys,
		query: queryagg.PublicInputs{
			BlockNumber:     testBlock,
			BlockRange:      0,
			Root:            testRoot(0xdeadbeef),
			ContractAddress: testContract,
			UserAddress:     testUser,
			MappingSlot:     testMapSlot,
			LengthSlot:      testLenSlot,
			Digest:          digest,
		},
		db: blockdb.PublicInputs{
			InitialRoot:        testRoot(0xc0ffee),
			LastRoot:           testRoot(0xdeadbeef),
			InitialBlockNumber: testBlock - 10,
			LastBlockNumber:    testBlock + 1,
			BlockHash:          testBlockHash,
		},
	}
}

// buildInput proves both statements with the requested stub variants and
// assembles the revelation input from the serialized envelopes.
func buildInput(t *testing.T, st statements, queryVariant, dbVariant int) *RecursiveInput {
	t.Helper()
	query, db := testFamilies(t)

	qProof, qPub, err := query.Prove(queryVariant, st.query.Vector())
	require.NoError(t, err)
	qEnv, err := (&subproof.ProofWithVK{
		Family:        subproof.FamilyQueryAggregation,
		Proof:         qProof,
		VerifyingKey:  query.VK(queryVariant),
		PublicWitness: qPub,
	}).Serialize()
	require.NoError(t, err)

	dProof, dPub, err := db.Prove(dbVariant, st.db.Vector())
	require.NoError(t, err)
	dEnv, err := (&subproof.ProofWithVK{
		Family:        subproof.FamilyBlockDatabase,
		Proof:         dProof,
		PublicWitness: dPub,
	}).Serialize()
	require.NoError(t, err)

	input, err := NewRecursiveInput(qEnv, dEnv, st.keys, testBlock, testBlock, testMaxKeys)
	require.NoError(t, err)
	return input
}

// testParams returns Parameters usable for witness assignment and solving,
// without the compile and setup cost of Build.
func testParams(t *testing.T) *Parameters {
	t.Helper()
	query, db := testFamilies(t)
	return &Parameters{
		cfg:      Config{MaxKeys: testMaxKeys},
		querySet: query.Set(),
		dbSet:    db.Set(),
		dbVK:     db.VK(0),
	}
}

func solve(t *testing.T, p *Parameters, input *RecursiveInput) error {
	t.Helper()
	a, err := p.assignment(input)
	if err != nil {
		return err
	}
	placeholder, err := newPlaceholder(p.cfg, p.querySet, p.dbSet, p.dbVK)
	require.NoError(t, err)
	return test.IsSolved(placeholder, a, OuterCurve.ScalarField())
}

func TestCircuitSolves(t *testing.T) {
	st := defaultStatements(t)
	// variant 1 exercises a nonzero key-switch selector
	input := buildInput(t, st, 1, 0)
	require.NoError(t, solve(t, testParams(t), input))
}

func TestCircuitRejectsDigestMismatch(t *testing.T) {
	st := defaultStatements(t)
	// reveal a key the query side never committed to
	st.keys = [][]byte{{1}}
	input := buildInput(t, st, 0, 0)
	require.Error(t, solve(t, testParams(t), input))
}

// A nonzero key supplied twice collapses into one canonical slot while the
// host digest counts it twice, so the statement is unsatisfiable even with
// a genuine query proof. Known limitation of the raw-count occupancy, kept
// in lockstep with keyset.Canonicalize; duplicated zero keys are unaffected
// (their hash equals the padding hash, see TestEndToEnd).
func TestCircuitDuplicateNonzeroKeyUnsatisfiable(t *testing.T) {
	st := defaultStatements(t)
	st.keys = [][]byte{{7}, {7}}
	digest, err := queryagg.Digest(st.keys)
	require.NoError(t, err)
	st.query.Digest = digest
	input := buildInput(t, st, 0, 0)
	require.Error(t, solve(t, testParams(t), input))
}

func TestCircuitRejectsStaleDatabase(t *testing.T) {
	st := defaultStatements(t)
	st.db.LastBlockNumber = testBlock - 1
	input := buildInput(t, st, 0, 0)
	require.Error(t, solve(t, testParams(t), input))
}

func TestCircuitRejectsRootMismatch(t *testing.T) {
	st := defaultStatements(t)
	st.db.LastRoot = testRoot(0xbad)
	input := buildInput(t, st, 0, 0)
	require.Error(t, solve(t, testParams(t), input))
}

func TestCircuitRejectsWrongDatabaseCircuit(t *testing.T) {
	st := defaultStatements(t)
	// proof from database variant 1; parameters fix variant 0's key
	input := buildInput(t, st, 0, 1)
	require.Error(t, solve(t, testParams(t), input))
}

func TestCircuitRejectsRangeMismatch(t *testing.T) {
	st := defaultStatements(t)
	input := buildInput(t, st, 0, 0)
	input.QueryMaxBlock = testBlock + 1
	require.Error(t, solve(t, testParams(t), input))
}

func TestAssignmentRejectsUnknownQueryCircuit(t *testing.T) {
	st := defaultStatements(t)
	input := buildInput(t, st, 0, 0)
	// swap in a verifying key from outside the query set
	_, db := testFamilies(t)
	input.QueryProof.VerifyingKey = db.VK(1)
	_, err := testParams(t).assignment(input)
	require.ErrorIs(t, err, circuitset.ErrUnknownCircuit)
}

func TestEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping outer compile, setup and prove in short mode")
	}
	query, db := testFamilies(t)
	params, err := Build(Config{MaxKeys: testMaxKeys}, query.Set(), db.Set(), db.VK(0))
	require.NoError(t, err)

	st := defaultStatements(t)
	input := buildInput(t, st, 1, 0)

	proof, err := params.GenerateProof(input)
	require.NoError(t, err)
	require.NoError(t, params.VerifyProof(proof))

	pis, err := ParsePublicInputs(proof, testMaxKeys)
	require.NoError(t, err)
	// occupancy counts supplied keys, not distinct ones
	require.EqualValues(t, testMaxKeys, pis.Occupancy)
	require.Len(t, pis.PackedKeys, testMaxKeys)
	for _, k := range pis.PackedKeys {
		require.True(t, k.IsZero())
	}
	require.Equal(t, testBlock, pis.QueryMinBlock)
	require.Equal(t, testBlock, pis.QueryMaxBlock)
	require.Equal(t, st.query, pis.Query)
	require.Equal(t, st.db, pis.DB)

	t.Run("parameters round-trip", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := params.WriteTo(&buf)
		require.NoError(t, err)

		reloaded, err := ReadParameters(bytes.NewReader(buf.Bytes()), query.Set(), db.Set(), db.VK(0))
		require.NoError(t, err)
		require.NoError(t, reloaded.VerifyProof(proof))

		proof2, err := reloaded.GenerateProof(input)
		require.NoError(t, err)
		require.NoError(t, params.VerifyProof(proof2))
	})

	t.Run("parameters mismatch", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := params.WriteTo(&buf)
		require.NoError(t, err)

		// wrong fixed database key
		_, err = ReadParameters(bytes.NewReader(buf.Bytes()), query.Set(), db.Set(), db.VK(1))
		require.ErrorIs(t, err, ErrParametersMismatch)
	})

	t.Run("proof tamper", func(t *testing.T) {
		tampered := append([]byte(nil), proof...)
		tampered[len(tampered)-1] ^= 1
		require.Error(t, params.VerifyProof(tampered))
	})
}

func TestBuildValidatesInputs(t *testing.T) {
	query, db := testFamilies(t)

	_, err := Build(Config{MaxKeys: 0}, query.Set(), db.Set(), db.VK(0))
	require.ErrorIs(t, err, ErrInvalidConfig)

	// swapped sets expose the wrong layouts
	_, err = Build(Config{MaxKeys: testMaxKeys}, db.Set(), query.Set(), db.VK(0))
	require.ErrorIs(t, err, ErrLayoutMismatch)

	// the fixed database key must come from the database set
	_, err = Build(Config{MaxKeys: testMaxKeys}, query.Set(), db.Set(), query.VK(0))
	require.ErrorIs(t, err, circuitset.ErrUnknownCircuit)
}

func TestGenerateProofValidatesCapacity(t *testing.T) {
	st := defaultStatements(t)
	input := buildInput(t, st, 0, 0)
	params := testParams(t)
	params.cfg.MaxKeys = testMaxKeys + 1
	_, err := params.assignment(input)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRecursiveInputRejectsMalformedEnvelopes(t *testing.T) {
	_, err := NewRecursiveInput([]byte("junk"), []byte("junk"), nil, testBlock, testBlock, testMaxKeys)
	require.ErrorIs(t, err, subproof.ErrMalformed)
}

func TestParsePublicInputsRejectsGarbage(t *testing.T) {
	_, err := ParsePublicInputs([]byte{0x01, 0x02, 0x03}, testMaxKeys)
	require.ErrorIs(t, err, ErrMalformedProof)
}

func TestParseVectorRejectsBadKeyLimbs(t *testing.T) {
	vec := make([]fr_bw6761.Element, NbPublicInputs(testMaxKeys))

	// wider than 64 bits
	vec[0].SetBigInt(new(big.Int).Lsh(big.NewInt(1), 65))
	_, err := parseVector(vec, testMaxKeys)
	require.ErrorIs(t, err, ErrMalformedProof)
	require.Contains(t, err.Error(), "exceeds 64 bits")

	// fits 64 bits but not a 32-bit limb
	vec[0].SetUint64(1 << 32)
	_, err = parseVector(vec, testMaxKeys)
	require.ErrorIs(t, err, ErrMalformedProof)
	require.Contains(t, err.Error(), "exceeds 32 bits")
}
