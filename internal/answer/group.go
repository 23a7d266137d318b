package answer

// GroupAndIndex returns a copy of citations with PartIndex set to the 1-based
// position of each citation among those sharing its exact SourcePath, counted
// in input order. Empty paths group together under "".
func GroupAndIndex(citations []Citation) []Citation {
	out := make([]Citation, len(citations))
	counters := make(map[string]int)
	for i, c := range citations {
		counters[c.SourcePath]++
		c.PartIndex = counters[c.SourcePath]
		out[i] = c
	}
	return out
}
