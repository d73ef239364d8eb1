package revelation

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/blang/semver/v4"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/logger"
	"github.com/consensys/gnark/std/algebra/native/sw_bls12377"
	stdgroth16 "github.com/consensys/gnark/std/recursion/groth16"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"github.com/zkrange/revelation/blockdb"
	"github.com/zkrange/revelation/circuitset"
	"github.com/zkrange/revelation/keyset"
	"github.com/zkrange/revelation/queryagg"
)

// OuterCurve is the curve the revelation circuit is compiled over. It must
// form a 2-chain with subproof.InnerCurve so sub-proofs verify natively.
const OuterCurve = ecc.BW6_761

var (
	// ErrInvalidConfig is returned by Build on a bad configuration.
	ErrInvalidConfig = errors.New("revelation: invalid configuration")
	// ErrLayoutMismatch is returned when a circuit set does not expose the
	// public-input layout its side of the statement requires.
	ErrLayoutMismatch = errors.New("revelation: circuit set public-input layout mismatch")
	// ErrMalformedProof is returned when an emitted proof fails to decode.
	ErrMalformedProof = errors.New("revelation: malformed proof encoding")
)

// revLog scopes the shared logger; it reflects logger configuration changes
// made after package init.
func revLog() zerolog.Logger {
	return logger.Logger().With().Str("component", "revelation").Logger()
}

// Config sizes a revelation deployment. Distinct configurations are
// independent; build Parameters per configuration.
type Config struct {
	// MaxKeys is the capacity L of the revealed key set. Fixed at build
	// time; validated at construction rather than at every use.
	MaxKeys int
}

func (c Config) validate() error {
	if c.MaxKeys <= 0 {
		return fmt.Errorf("%w: MaxKeys must be positive, got %d", ErrInvalidConfig, c.MaxKeys)
	}
	return nil
}

// Parameters holds the compiled revelation circuit and both verifier
// gadgets. Build once per configuration; immutable afterwards and safe to
// share across concurrent GenerateProof calls, each of which owns its own
// witness state.
type Parameters struct {
	cfg      Config
	ccs      constraint.ConstraintSystem
	pk       groth16.ProvingKey
	vk       groth16.VerifyingKey
	querySet *circuitset.Set
	dbSet    *circuitset.Set
	dbVK     groth16.VerifyingKey
}

// Build compiles the revelation circuit against the query-aggregation
// circuit set and the single block-database verifying key, and runs the
// Groth16 setup. Cost is proportional to the circuit size; run once per
// configuration and reuse (or persist with WriteTo).
func Build(cfg Config, querySet, dbSet *circuitset.Set, dbVK groth16.VerifyingKey) (*Parameters, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if got := querySet.NbPublicInputs(); got != queryagg.NbPublicInputs {
		return nil, fmt.Errorf("%w: query set exposes %d public inputs, want %d", ErrLayoutMismatch, got, queryagg.NbPublicInputs)
	}
	if got := dbSet.NbPublicInputs(); got != blockdb.NbPublicInputs {
		return nil, fmt.Errorf("%w: block-db set exposes %d public inputs, want %d", ErrLayoutMismatch, got, blockdb.NbPublicInputs)
	}
	// the database side accepts exactly one circuit shape of its set
	if !dbSet.Contains(dbVK) {
		return nil, fmt.Errorf("block-db verifying key: %w", circuitset.ErrUnknownCircuit)
	}

	placeholder, err := newPlaceholder(cfg, querySet, dbSet, dbVK)
	if err != nil {
		return nil, err
	}

	log := revLog()
	start := time.Now()
	ccs, err := frontend.Compile(OuterCurve.ScalarField(), r1cs.NewBuilder, placeholder)
	if err != nil {
		return nil, fmt.Errorf("compile revelation circuit: %w", err)
	}
	log.Debug().Dur("took", time.Since(start)).Int("nbConstraints", ccs.GetNbConstraints()).Msg("compiled revelation circuit")

	start = time.Now()
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("setup revelation circuit: %w", err)
	}
	log.Debug().Dur("took", time.Since(start)).Msg("revelation setup done")

	return &Parameters{
		cfg:      cfg,
		ccs:      ccs,
		pk:       pk,
		vk:       vk,
		querySet: querySet,
		dbSet:    dbSet,
		dbVK:     dbVK,
	}, nil
}

// newPlaceholder allocates the compile-time circuit: verifying keys as
// constants, witness wires sized from the circuit sets.
func newPlaceholder(cfg Config, querySet, dbSet *circuitset.Set, dbVK groth16.VerifyingKey) (*circuit, error) {
	queryKeys := make([]InnerVerifyingKey, 0, querySet.Size())
	for _, m := range querySet.Members() {
		k, err := stdgroth16.ValueOfVerifyingKey[sw_bls12377.G1Affine, sw_bls12377.G2Affine, sw_bls12377.GT](m.VK)
		if err != nil {
			return nil, fmt.Errorf("verifying key of %q: %w", m.Name, err)
		}
		queryKeys = append(queryKeys, k)
	}
	dbKey, err := stdgroth16.ValueOfVerifyingKeyFixed[sw_bls12377.G1Affine, sw_bls12377.G2Affine, sw_bls12377.GT](dbVK)
	if err != nil {
		return nil, fmt.Errorf("block-db verifying key: %w", err)
	}
	return &circuit{
		PackedKeys:   make([][keyset.NumKeyLimbs]frontend.Variable, cfg.MaxKeys),
		DBWitness:    stdgroth16.PlaceholderWitness[ScalarField](dbSet.SampleCCS()),
		QueryWitness: stdgroth16.PlaceholderWitness[ScalarField](querySet.SampleCCS()),
		queryKeys:    queryKeys,
		dbKey:        dbKey,
	}, nil
}

// Config returns the configuration the parameters were built for.
func (p *Parameters) Config() Config {
	return p.cfg
}

// VerifyingKey returns the verifying key of the revelation circuit, the
// input to the downstream pairing-based wrapping step.
func (p *Parameters) VerifyingKey() groth16.VerifyingKey {
	return p.vk
}

// assignment translates a per-request input into circuit wire values. The
// query-side verifying key is resolved to its index in the circuit set
// here; the in-circuit key switch enforces that the resolution is honest.
func (p *Parameters) assignment(input *RecursiveInput) (*circuit, error) {
	if got := len(input.Keys.Keys); got != p.cfg.MaxKeys {
		return nil, fmt.Errorf("%w: input assembled for capacity %d, parameters built for %d", ErrInvalidConfig, got, p.cfg.MaxKeys)
	}
	selector, err := p.querySet.IndexOf(input.QueryProof.VerifyingKey)
	if err != nil {
		return nil, fmt.Errorf("query proof: %w", err)
	}

	queryProof, err := stdgroth16.ValueOfProof[sw_bls12377.G1Affine, sw_bls12377.G2Affine](input.QueryProof.Proof)
	if err != nil {
		return nil, fmt.Errorf("query proof: %w", err)
	}
	queryWitness, err := stdgroth16.ValueOfWitness[ScalarField](input.QueryProof.PublicWitness)
	if err != nil {
		return nil, fmt.Errorf("query witness: %w", err)
	}
	dbProof, err := stdgroth16.ValueOfProof[sw_bls12377.G1Affine, sw_bls12377.G2Affine](input.DBProof.Proof)
	if err != nil {
		return nil, fmt.Errorf("block-db proof: %w", err)
	}
	dbWitness, err := stdgroth16.ValueOfWitness[ScalarField](input.DBProof.PublicWitness)
	if err != nil {
		return nil, fmt.Errorf("block-db witness: %w", err)
	}

	a := &circuit{
		PackedKeys:    make([][keyset.NumKeyLimbs]frontend.Variable, p.cfg.MaxKeys),
		Occupancy:     input.Keys.Occupancy,
		QueryMinBlock: input.QueryMinBlock,
		QueryMaxBlock: input.QueryMaxBlock,
		DBWitness:     dbWitness,
		QueryWitness:  queryWitness,
		DBProof:       dbProof,
		QueryProof:    queryProof,
		QuerySelector: selector,
	}
	for i, k := range input.Keys.Keys {
		for j, limb := range k {
			a.PackedKeys[i][j] = limb
		}
	}
	return a, nil
}

// GenerateProof proves the revelation statement over the given per-request
// input. It fails when either sub-proof is malformed or outside its
// expected set, or when the bound statement is unsatisfiable (digest
// mismatch, range mismatch, stale database); such failures are final for
// the given input. Either a complete serialized proof is returned, or an
// error.
func (p *Parameters) GenerateProof(input *RecursiveInput) ([]byte, error) {
	a, err := p.assignment(input)
	if err != nil {
		return nil, err
	}
	w, err := frontend.NewWitness(a, OuterCurve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness: %w", err)
	}

	log := revLog()
	start := time.Now()
	proof, err := groth16.Prove(p.ccs, p.pk, w)
	if err != nil {
		return nil, fmt.Errorf("prove revelation: %w", err)
	}
	log.Debug().Dur("took", time.Since(start)).Msg("generated revelation proof")

	pubw, err := w.Public()
	if err != nil {
		return nil, fmt.Errorf("public witness: %w", err)
	}
	return encodeProof(proof, pubw)
}

// VerifyProof checks an emitted proof against the compiled verifying key.
// A verification failure is a definite reject, not a transient condition.
// This is a local sanity check; the externally meaningful verification
// happens after pairing-based wrapping.
func (p *Parameters) VerifyProof(data []byte) error {
	proof, pubw, err := decodeProof(data)
	if err != nil {
		return err
	}
	return groth16.Verify(proof, p.vk, pubw)
}

type proofEnvelope struct {
	Version       string `cbor:"1,keyasint"`
	Proof         []byte `cbor:"2,keyasint"`
	PublicWitness []byte `cbor:"3,keyasint"`
}

// encodeProof frames the proof together with its public witness; the
// witness carries the fixed-order public-input sequence downstream
// consumers parse (see PublicInputs).
func encodeProof(proof groth16.Proof, pubw witness.Witness) ([]byte, error) {
	env := proofEnvelope{Version: LayoutVersion.String()}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}
	env.Proof = append([]byte(nil), buf.Bytes()...)
	buf.Reset()
	if _, err := pubw.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize public witness: %w", err)
	}
	env.PublicWitness = append([]byte(nil), buf.Bytes()...)
	return cbor.Marshal(env)
}

func decodeProof(data []byte) (groth16.Proof, witness.Witness, error) {
	var env proofEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	version, err := semver.Parse(env.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: version %q", ErrMalformedProof, env.Version)
	}
	if version.Major != LayoutVersion.Major {
		return nil, nil, fmt.Errorf("%w: layout version %s, want %s", ErrMalformedProof, version, LayoutVersion)
	}
	proof := groth16.NewProof(OuterCurve)
	if _, err := proof.ReadFrom(bytes.NewReader(env.Proof)); err != nil {
		return nil, nil, fmt.Errorf("%w: proof: %v", ErrMalformedProof, err)
	}
	pubw, err := witness.New(OuterCurve.ScalarField())
	if err != nil {
		return nil, nil, fmt.Errorf("new witness: %w", err)
	}
	if _, err := pubw.ReadFrom(bytes.NewReader(env.PublicWitness)); err != nil {
		return nil, nil, fmt.Errorf("%w: public witness: %v", ErrMalformedProof, err)
	}
	return proof, pubw, nil
}
