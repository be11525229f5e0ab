package ids

import (
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// MarshalCBOR encodes a Bias as the "left"/"right" string spec.md's wire
// format names, rather than the bare integer Go uses internally.
func (b Bias) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(b.String())
}

// UnmarshalCBOR decodes a Bias from its "left"/"right" wire string.
func (b *Bias) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseBias(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalCBOR encodes a RevisionId as its sorted slice of ids; the frontier
// is reconstructed by sorting on decode, which RevisionId already
// guarantees of any slice it hands out.
func (r RevisionId) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(r.ids)
}

// UnmarshalCBOR decodes a RevisionId from its wire slice of ids.
func (r *RevisionId) UnmarshalCBOR(data []byte) error {
	var decoded []OperationId
	if err := cbor.Unmarshal(data, &decoded); err != nil {
		return err
	}
	sort.Slice(decoded, func(i, j int) bool { return decoded[i].Less(decoded[j]) })
	r.ids = decoded
	return nil
}

// repoIdWire is RepoId's wire shape: its two halves, exported so the
// generic cbor encoder can reach them without RepoId itself exposing hi/lo.
type repoIdWire struct {
	Hi uint64
	Lo uint64
}

// MarshalCBOR encodes a RepoId as its two 64-bit halves.
func (r RepoId) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(repoIdWire{Hi: r.hi, Lo: r.lo})
}

// UnmarshalCBOR decodes a RepoId from its wire halves.
func (r *RepoId) UnmarshalCBOR(data []byte) error {
	var w repoIdWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	r.hi, r.lo = w.Hi, w.Lo
	return nil
}
