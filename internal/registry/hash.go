package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// computeToolsetHash implements spec §4.2's toolset hash: SHA-256 over the
// concatenation of publicName \x00 canonicalJson(schema) \x01 for every
// tool, in lexicographic order of publicName. The full digest is kept
// internally; only its leading 16 hex chars travel over the wire, per
// spec §4.2.
func computeToolsetHash(tools map[string]hashable) (full string, short string) {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0x00})
		h.Write(canonicalJSON(tools[name].schemaBytes()))
		h.Write([]byte{0x01})
	}

	sum := h.Sum(nil)
	full = hex.EncodeToString(sum)
	if len(full) > 16 {
		short = full[:16]
	} else {
		short = full
	}
	return full, short
}

// hashable is anything the toolset hash can be computed over.
type hashable interface {
	schemaBytes() json.RawMessage
}

// canonicalJSON re-marshals raw through a generic interface{} so that key
// order and whitespace don't affect the hash. Malformed or empty input is
// passed through unchanged (an empty schema still participates in the
// hash as an empty byte string).
func canonicalJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
