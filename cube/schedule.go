package cube

// Segment scheduling works on global sample indices: file i covers
// [i·N, (i+1)·N) and global segment k starts at k·hop. A file owns every
// segment that starts inside it; the last file only owns segments whose
// window ends inside it, because nothing follows it.

// SegmentRange returns the first and last global segment index owned by
// file i out of nFiles. last < first means the file owns no segment.
func SegmentRange(i, n, hop, segLen, nFiles int) (first, last int) {
	lo := i * n
	first = ceilDiv(lo, hop)
	if i == nFiles-1 {
		last = floorDiv(lo+n-segLen, hop)
	} else {
		last = floorDiv(lo+n-1, hop)
	}
	return first, last
}

// SegmentPositions returns the sample offsets, relative to the start of
// file i, at which its segments begin. Offsets increase by exactly hop.
// For a non-last file the window of the final offsets may run past the
// file end into the next file.
func SegmentPositions(i, n, hop, segLen, nFiles int) []int {
	first, last := SegmentRange(i, n, hop, segLen, nFiles)
	if last < first {
		return []int{}
	}
	pos := make([]int, 0, last-first+1)
	for k := first; k <= last; k++ {
		pos = append(pos, k*hop-i*n)
	}
	return pos
}

// TotalSegments is the closed form of the sum of per-file segment counts
func TotalSegments(n, hop, segLen, nFiles int) int {
	return (nFiles*n-segLen)/hop + 1
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return -floorDiv(-a, b)
	}
	return (a + b - 1) / b
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
