// Package testfamily fabricates small Groth16 circuit families over
// BLS12-377 for testing the revelation layer without the real
// query-aggregation and block-database provers.
//
// A family is a handful of stub circuits that expose a fixed number of
// otherwise unconstrained public inputs, so genuine proofs can be produced
// for arbitrary public-input vectors. Each variant carries a different
// amount of internal work, which yields distinct constraint systems and
// therefore distinct verifying keys.
package testfamily

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	fr_bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/zkrange/revelation/circuitset"
)

// InnerCurve is the curve every synthetic sub-proof is produced over.
const InnerCurve = ecc.BLS12_377

// StubCircuit exposes nbPublic free public inputs. Every public input is
// folded into the accumulator so each one is constrained and the verifying
// key carries a proper commitment point per input; leaving them dangling
// would put points at infinity into the key, which the in-circuit verifier
// cannot process. The variant field pads the circuit with extra squarings
// so different variants compile to different shapes.
type StubCircuit struct {
	PI   []frontend.Variable `gnark:",public"`
	Salt frontend.Variable

	variant int
}

func (c *StubCircuit) Define(api frontend.API) error {
	acc := c.Salt
	for _, pi := range c.PI {
		acc = api.Add(api.Mul(acc, acc), pi)
	}
	for i := 0; i <= c.variant; i++ {
		acc = api.Mul(acc, acc)
	}
	api.AssertIsDifferent(acc, 0)
	return nil
}

// Family holds the compiled variants, their proving keys and the circuit-set
// registry over their verifying keys.
type Family struct {
	set *circuitset.Set
	pks []groth16.ProvingKey
}

// New compiles a family of `variants` stub circuits, each exposing nbPublic
// public inputs, and runs the (unsafe, test-only) Groth16 setup for each.
func New(name string, nbPublic, variants int) (*Family, error) {
	members := make([]circuitset.Member, variants)
	pks := make([]groth16.ProvingKey, variants)
	for i := 0; i < variants; i++ {
		ccs, err := frontend.Compile(InnerCurve.ScalarField(), r1cs.NewBuilder, &StubCircuit{
			PI:      make([]frontend.Variable, nbPublic),
			variant: i,
		})
		if err != nil {
			return nil, fmt.Errorf("compile %s variant %d: %w", name, i, err)
		}
		pk, vk, err := groth16.Setup(ccs)
		if err != nil {
			return nil, fmt.Errorf("setup %s variant %d: %w", name, i, err)
		}
		members[i] = circuitset.Member{
			Name: fmt.Sprintf("%s/%d", name, i),
			CCS:  ccs,
			VK:   vk,
		}
		pks[i] = pk
	}
	set, err := circuitset.New(members...)
	if err != nil {
		return nil, err
	}
	return &Family{set: set, pks: pks}, nil
}

// Set returns the circuit-set registry over the family's verifying keys.
func (f *Family) Set() *circuitset.Set {
	return f.set
}

// VK returns the verifying key of the given variant.
func (f *Family) VK(variant int) groth16.VerifyingKey {
	return f.set.Members()[variant].VK
}

// Prove produces a genuine proof of the given variant over the supplied
// public-input vector and returns it together with the public witness.
func (f *Family) Prove(variant int, publicInputs []fr_bls12377.Element) (groth16.Proof, witness.Witness, error) {
	assignment := &StubCircuit{
		PI:   make([]frontend.Variable, len(publicInputs)),
		Salt: 2,
	}
	for i := range publicInputs {
		assignment.PI[i] = publicInputs[i]
	}
	w, err := frontend.NewWitness(assignment, InnerCurve.ScalarField())
	if err != nil {
		return nil, nil, fmt.Errorf("witness: %w", err)
	}
	member := f.set.Members()[variant]
	proof, err := groth16.Prove(member.CCS, f.pks[variant], w)
	if err != nil {
		return nil, nil, fmt.Errorf("prove: %w", err)
	}
	pubw, err := w.Public()
	if err != nil {
		return nil, nil, fmt.Errorf("public witness: %w", err)
	}
	return proof, pubw, nil
}
