package denseid

import "github.com/fxamacker/cbor/v2"

// MarshalCBOR encodes a DenseId as its raw byte string.
func (d DenseId) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(d.bytes)
}

// UnmarshalCBOR decodes a DenseId from its wire byte string.
func (d *DenseId) UnmarshalCBOR(data []byte) error {
	var decoded []byte
	if err := cbor.Unmarshal(data, &decoded); err != nil {
		return err
	}
	d.bytes = decoded
	return nil
}
