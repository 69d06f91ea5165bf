package excel

// Sheet is a rectangular block of trimmed cells: a header plus data rows.
type Sheet struct {
	Headers []string   // column headers
	Rows    [][]string // data rows, padded to len(Headers)
}

// Column returns the index of the first header matching any of names,
// case-insensitively, or -1.
func (s *Sheet) Column(names ...string) int {
	for i, h := range s.Headers {
		for _, n := range names {
			if equalFold(h, n) {
				return i
			}
		}
	}
	return -1
}
