package mvcc

import (
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// stateDoc is the wire shape of an exported TransactionState: a flat,
// human-inspectable document suitable for handing to another process or
// writing to a file alongside Resume.
type stateDoc struct {
	ID       string   `yaml:"id,omitempty"`
	Version  uint64   `yaml:"version"`
	ReadOnly bool     `yaml:"read_only"`
	Active   []uint64 `yaml:"active,omitempty"`
}

// EncodeState serializes a TransactionState so it can be shipped across a
// process boundary and later reconstructed with DecodeState and Resume.
func EncodeState(state TransactionState) ([]byte, error) {
	doc := stateDoc{
		Version:  state.Version,
		ReadOnly: state.ReadOnly,
		Active:   sortedVersions(state.Active),
	}
	if state.ID != uuid.Nil {
		doc.ID = state.ID.String()
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, internalErrorf("encode transaction state: %v", err)
	}
	return out, nil
}

// DecodeState is the inverse of EncodeState.
func DecodeState(buf []byte) (TransactionState, error) {
	var doc stateDoc
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return TransactionState{}, internalErrorf("decode transaction state: %v", err)
	}

	id := uuid.Nil
	if doc.ID != "" {
		parsed, err := uuid.Parse(doc.ID)
		if err != nil {
			return TransactionState{}, internalErrorf("decode transaction state: invalid id %q: %v", doc.ID, err)
		}
		id = parsed
	}

	active := make(map[uint64]struct{}, len(doc.Active))
	for _, v := range doc.Active {
		active[v] = struct{}{}
	}

	return TransactionState{
		ID:       id,
		Version:  doc.Version,
		ReadOnly: doc.ReadOnly,
		Active:   active,
	}, nil
}
