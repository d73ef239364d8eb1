package revelation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/blang/semver/v4"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/fxamacker/cbor/v2"

	"github.com/zkrange/revelation/circuitset"
)

// ErrParametersMismatch is returned by ReadParameters when the persisted
// parameters were built against different circuit sets or configuration
// than the ones supplied at load time.
var ErrParametersMismatch = fmt.Errorf("revelation: persisted parameters do not match supplied circuit sets")

// paramsHeader pins what the persisted keys were compiled against. The
// constraint system and keys follow it on the stream in gnark's own
// serialized forms.
type paramsHeader struct {
	Version           string   `cbor:"1,keyasint"`
	MaxKeys           int      `cbor:"2,keyasint"`
	QueryFingerprints [][]byte `cbor:"3,keyasint"`
	DBFingerprint     []byte   `cbor:"4,keyasint"`
}

// WriteTo persists the compiled parameters: a length-prefixed header
// followed by the constraint system, proving key and verifying key. The
// circuit sets themselves are not persisted; ReadParameters takes them
// again and checks them against the header.
func (p *Parameters) WriteTo(w io.Writer) (int64, error) {
	header := paramsHeader{
		Version: LayoutVersion.String(),
		MaxKeys: p.cfg.MaxKeys,
	}
	for _, m := range p.querySet.Members() {
		fp, err := circuitset.Fingerprint(m.VK)
		if err != nil {
			return 0, err
		}
		header.QueryFingerprints = append(header.QueryFingerprints, fp[:])
	}
	fp, err := circuitset.Fingerprint(p.dbVK)
	if err != nil {
		return 0, err
	}
	header.DBFingerprint = fp[:]

	hb, err := cbor.Marshal(header)
	if err != nil {
		return 0, fmt.Errorf("serialize header: %w", err)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(hb)))
	var total int64
	n, err := w.Write(prefix[:])
	total += int64(n)
	if err != nil {
		return total, err
	}
	n, err = w.Write(hb)
	total += int64(n)
	if err != nil {
		return total, err
	}
	for _, wt := range []io.WriterTo{p.ccs, p.pk, p.vk} {
		m, err := wt.WriteTo(w)
		total += m
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadParameters loads parameters persisted by WriteTo. The caller supplies
// the same circuit sets and block-database verifying key the parameters
// were built with; a mismatch fails with ErrParametersMismatch rather than
// producing a prover that silently rejects every input.
func ReadParameters(r io.Reader, querySet, dbSet *circuitset.Set, dbVK groth16.VerifyingKey) (*Parameters, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	hb := make([]byte, binary.BigEndian.Uint32(prefix[:]))
	if _, err := io.ReadFull(r, hb); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var header paramsHeader
	if err := cbor.Unmarshal(hb, &header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	version, err := semver.Parse(header.Version)
	if err != nil {
		return nil, fmt.Errorf("decode header version %q: %w", header.Version, err)
	}
	if version.Major != LayoutVersion.Major {
		return nil, fmt.Errorf("%w: layout version %s, want %s", ErrParametersMismatch, version, LayoutVersion)
	}
	if err := checkHeader(header, querySet, dbVK); err != nil {
		return nil, err
	}

	ccs := groth16.NewCS(OuterCurve)
	if _, err := ccs.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read constraint system: %w", err)
	}
	pk := groth16.NewProvingKey(OuterCurve)
	if _, err := pk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read proving key: %w", err)
	}
	vk := groth16.NewVerifyingKey(OuterCurve)
	if _, err := vk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read verifying key: %w", err)
	}
	return &Parameters{
		cfg:      Config{MaxKeys: header.MaxKeys},
		ccs:      ccs,
		pk:       pk,
		vk:       vk,
		querySet: querySet,
		dbSet:    dbSet,
		dbVK:     dbVK,
	}, nil
}

func checkHeader(header paramsHeader, querySet *circuitset.Set, dbVK groth16.VerifyingKey) error {
	if header.MaxKeys <= 0 {
		return fmt.Errorf("%w: MaxKeys %d", ErrParametersMismatch, header.MaxKeys)
	}
	members := querySet.Members()
	if len(header.QueryFingerprints) != len(members) {
		return fmt.Errorf("%w: %d query circuits persisted, %d supplied", ErrParametersMismatch, len(header.QueryFingerprints), len(members))
	}
	for i, m := range members {
		fp, err := circuitset.Fingerprint(m.VK)
		if err != nil {
			return err
		}
		if !bytes.Equal(fp[:], header.QueryFingerprints[i]) {
			return fmt.Errorf("%w: query circuit %q", ErrParametersMismatch, m.Name)
		}
	}
	fp, err := circuitset.Fingerprint(dbVK)
	if err != nil {
		return err
	}
	if !bytes.Equal(fp[:], header.DBFingerprint) {
		return fmt.Errorf("%w: block-db verifying key", ErrParametersMismatch)
	}
	return nil
}
