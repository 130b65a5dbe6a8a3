package diff

// block is a changed region in element coordinates: a[a0:a1] became b[b0:b1].
type block struct {
	a0, a1 int
	b0, b1 int
}

// myers runs the greedy O((N+M)D) algorithm over interned element ids and
// returns the changed blocks between the longest common subsequence's
// matches. It gives up, returning ok=false, once the edit distance exceeds
// maxCost (maxCost <= 0 means unbounded).
func myers(a, b []int, maxCost int) (blocks []block, ok bool) {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return nil, true
	}
	if n == 0 || m == 0 {
		return []block{{0, n, 0, m}}, true
	}

	limit := n + m
	if maxCost > 0 && maxCost < limit {
		limit = maxCost
	}

	offset := limit + 1
	v := make([]int, 2*limit+3)
	// trace[d] holds v[-d..d] after step d
	trace := make([][]int, 0, 16)

	found := -1
	for d := 0; d <= limit && found < 0; d++ {
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				found = d
			}
		}
		snap := make([]int, 2*d+1)
		copy(snap, v[offset-d:offset+d+1])
		trace = append(trace, snap)
	}
	if found < 0 {
		return nil, false
	}

	// Walk back from (n, m) collecting matched pairs in reverse.
	type pair struct{ x, y int }
	matches := make([]pair, 0, n)
	x, y := n, m
	for d := found; d > 0; d-- {
		prev := trace[d-1]
		at := func(k int) int { return prev[k+d-1] }
		k := x - y

		var prevK int
		if k == -d || (k != d && at(k-1) < at(k+1)) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := at(prevK)
		prevY := prevX - prevK

		midX := prevX
		if prevK == k-1 {
			midX = prevX + 1
		}
		midY := midX - k

		for x > midX && y > midY {
			x--
			y--
			matches = append(matches, pair{x, y})
		}
		x, y = prevX, prevY
	}
	for x > 0 && y > 0 {
		x--
		y--
		matches = append(matches, pair{x, y})
	}

	pi, pj := 0, 0
	for i := len(matches) - 1; i >= 0; i-- {
		mt := matches[i]
		if mt.x > pi || mt.y > pj {
			blocks = append(blocks, block{pi, mt.x, pj, mt.y})
		}
		pi, pj = mt.x+1, mt.y+1
	}
	if pi < n || pj < m {
		blocks = append(blocks, block{pi, n, pj, m})
	}
	return blocks, true
}
