package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// polyMarkerPrefix starts every inserted filler line. Normalize strips these
// lines, so a variant and its seed compare equal after normalization.
const polyMarkerPrefix = "# wormsim:poly:"

// polyToken derives the marker token for a generation. Deterministic given
// (seed, generation), distinct across generations.
func polyToken(seed []byte, generation int) string {
	h := sha256.New()
	h.Write(seed)
	var g [8]byte
	binary.BigEndian.PutUint64(g[:], uint64(generation))
	h.Write(g[:])
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:4])
}

// Mutate produces a variant of seed that is semantically identical but
// checksum-distinct, by inserting one non-executing marker line at a
// generation-dependent line boundary. For i != j,
// digest(Mutate(seed, i)) != digest(Mutate(seed, j)): the marker embeds both
// a seed-keyed token and the generation index.
func Mutate(seed []byte, generation int) []byte {
	marker := fmt.Sprintf("%s%s g%d\n", polyMarkerPrefix, polyToken(seed, generation), generation)

	lines := splitAfterNewlines(seed)
	pos := 0
	if n := len(lines); n > 0 {
		pos = generation % (n + 1)
		if pos == n && seed[len(seed)-1] != '\n' {
			// A marker after a final line lacking its newline would alter the
			// seed bytes, so it goes before that line instead.
			pos = n - 1
		}
	}

	var out bytes.Buffer
	out.Grow(len(seed) + len(marker))
	for i, line := range lines {
		if i == pos {
			out.WriteString(marker)
		}
		out.Write(line)
	}
	if pos == len(lines) {
		out.WriteString(marker)
	}
	return out.Bytes()
}

// MutateChain feeds the variant back through Mutate depth times, modelling
// replicas descended from replicas. Each link's marker is keyed by the
// previous link's content, so chained variants stay pairwise distinct while
// Normalize still recovers the original seed.
func MutateChain(seed []byte, generation, depth int) []byte {
	variant := seed
	for d := 0; d < depth; d++ {
		variant = Mutate(variant, generation)
	}
	return variant
}

// Normalize removes every marker line. The semantic-equivalence check for
// any variant is Normalize(variant) == Normalize(seed).
func Normalize(content []byte) []byte {
	lines := splitAfterNewlines(content)
	var out bytes.Buffer
	out.Grow(len(content))
	for _, line := range lines {
		if bytes.HasPrefix(line, []byte(polyMarkerPrefix)) {
			continue
		}
		out.Write(line)
	}
	return out.Bytes()
}

// Equivalent reports whether variant is semantically identical to seed.
func Equivalent(seed, variant []byte) bool {
	return bytes.Equal(Normalize(seed), Normalize(variant))
}

// ContentChecksum is the digest recorded in journal entries and reported by
// status.
func ContentChecksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// splitAfterNewlines splits content into lines that keep their trailing
// newline, so rejoining the pieces reproduces the input byte for byte.
func splitAfterNewlines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	var lines [][]byte
	start := 0
	for i, b := range content {
		if b == '\n' {
			lines = append(lines, content[start:i+1])
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}
