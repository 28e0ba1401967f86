package coordinator

// MatchesCapabilities reports whether have satisfies every requirement in
// want: for each wanted capability there must be a matching-named entry in
// have whose proficiency is at least the minimum required. An empty want
// set is trivially satisfied (§4.4.3).
func MatchesCapabilities(have, want []Capability) bool {
	for _, w := range want {
		satisfied := false
		for _, h := range have {
			if h.Name == w.Name && h.MinimumProficiency >= w.MinimumProficiency {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}
