package chatman

// Match reports whether name matches pattern. The pattern language is
// literal characters plus '*', which matches any run of characters
// including the empty run. The empty pattern matches every name, so a
// blank account filter means "list all".
//
// The matcher is an iterative single-star backtracker: on a mismatch
// it rewinds to the most recent '*' and widens what that star
// consumed. It is total and never fails on any input.
func Match(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	px, nx := 0, 0
	backPx, backNx := -1, 0
	for nx < len(name) {
		if px < len(pattern) && pattern[px] == '*' {
			backPx, backNx = px, nx
			px++
			continue
		}
		if px < len(pattern) && pattern[px] == name[nx] {
			px++
			nx++
			continue
		}
		if backPx >= 0 {
			backNx++
			nx = backNx
			px = backPx + 1
			continue
		}
		return false
	}
	// Trailing stars consume nothing.
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
