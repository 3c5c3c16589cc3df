package token

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/faultline/faultline/pkg/schema"
)

// WireBudget is the hard transport limit on the encoded token, in bytes.
// The callback payload of the chat transport carries at most 64 bytes.
const WireBudget = 64

// rawBudget is the binary payload size that encodes to exactly WireBudget
// characters under unpadded base64url (4 chars per 3 bytes).
const rawBudget = WireBudget / 4 * 3

// versionReserve is the worst-case uvarint width reserved for the version
// index in the compile-time budget check. Version indices are assigned
// monotonically by the store, so a graph accepted today must still encode
// after indices have climbed.
const versionReserve = 5

var wire = base64.RawURLEncoding

// State is the codec-visible navigation state: the pinned graph version and
// the position plus history as compact indices scoped to that version.
// The token is a stateless carrier, not authoritative storage: any instance
// must be able to rebuild a session from it alone.
type State struct {
	VersionIndex uint64
	NodeIndex    int
	History      []int // visited node indices, most-recent-last
}

// Encode packs the state into a wire token within WireBudget bytes.
// When the full history does not fit, entries are dropped from the oldest
// end; the current node and the most recent history entry (when history is
// non-empty) are always preserved so at least one BACK remains possible.
func Encode(s State) (string, error) {
	if s.NodeIndex < 0 {
		return "", schema.NewErrorf(schema.ErrCodeEncoding, "negative node index %d", s.NodeIndex)
	}

	history := s.History
	for {
		raw := pack(s.VersionIndex, s.NodeIndex, history)
		if len(raw) <= rawBudget {
			return wire.EncodeToString(raw), nil
		}
		if len(history) == 0 {
			// Minimal payload over budget: the graph should have been
			// rejected at compile time.
			return "", schema.NewErrorf(schema.ErrCodeEncoding,
				"minimal token is %d bytes, budget is %d", len(raw), rawBudget)
		}
		history = history[1:]
	}
}

// Decode unpacks a wire token. Structural failures yield a DECODE_ERROR;
// version resolution is the caller's concern (an unknown version index is a
// stale token, not a malformed one).
func Decode(tok string) (State, error) {
	if tok == "" {
		return State{}, schema.NewError(schema.ErrCodeDecode, "empty token")
	}
	if len(tok) > WireBudget {
		return State{}, schema.NewErrorf(schema.ErrCodeDecode, "token is %d bytes, budget is %d", len(tok), WireBudget)
	}

	raw, err := wire.DecodeString(tok)
	if err != nil {
		return State{}, schema.NewError(schema.ErrCodeDecode, "token is not valid base64url").WithCause(err)
	}

	version, n := binary.Uvarint(raw)
	if n <= 0 {
		return State{}, schema.NewError(schema.ErrCodeDecode, "truncated version index")
	}
	raw = raw[n:]

	node, n := binary.Uvarint(raw)
	if n <= 0 {
		return State{}, schema.NewError(schema.ErrCodeDecode, "truncated node index")
	}
	raw = raw[n:]

	var history []int
	for len(raw) > 0 {
		h, n := binary.Uvarint(raw)
		if n <= 0 {
			return State{}, schema.NewError(schema.ErrCodeDecode, "truncated history entry")
		}
		raw = raw[n:]
		history = append(history, int(h))
	}

	return State{VersionIndex: version, NodeIndex: int(node), History: history}, nil
}

// CheckGraphBudget verifies that every node of a graph with the given node
// count can be carried in a token, with the version reserve and one history
// entry included. Called by the compiler; failure rejects the graph.
func CheckGraphBudget(nodeCount int) error {
	if nodeCount <= 0 {
		return schema.NewError(schema.ErrCodeEncoding, "graph has no nodes")
	}
	maxIdx := uint64(nodeCount - 1)
	need := versionReserve + uvarintLen(maxIdx)*2
	if need > rawBudget {
		return schema.NewErrorf(schema.ErrCodeEncoding,
			"graph with %d nodes needs %d token bytes, budget is %d", nodeCount, need, rawBudget)
	}
	return nil
}

// pack writes (version, node, history...) as consecutive uvarints.
// History needs no length prefix: decode consumes the remaining bytes.
func pack(version uint64, node int, history []int) []byte {
	buf := make([]byte, 0, rawBudget)
	var tmp [binary.MaxVarintLen64]byte

	buf = append(buf, tmp[:binary.PutUvarint(tmp[:], version)]...)
	buf = append(buf, tmp[:binary.PutUvarint(tmp[:], uint64(node))]...)
	for _, h := range history {
		buf = append(buf, tmp[:binary.PutUvarint(tmp[:], uint64(h))]...)
	}
	return buf
}

func uvarintLen(v uint64) int {
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutUvarint(tmp[:], v)
}
