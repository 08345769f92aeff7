package state

import "hash/fnv"

// ColorFor hashes a display name into the 24-bit RGB space. The floor
// on each channel keeps every name legible against a dark canvas. The
// mapping is deterministic so a name keeps its color across sessions.
func ColorFor(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	c := int(h.Sum32()) & 0xFFFFFF
	return c | 0x202020
}
