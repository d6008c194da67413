package cycle

// FilterLedger returns the ledger dates that fall inside c, normalized to
// YYYY-MM-DD. Entries that do not parse are dropped. Order is not significant.
// PRE: ledger holds ISO date strings
// POST: Returns a non-nil slice; the input is not modified
func FilterLedger(ledger []string, c Cycle) []string {
	loc := c.Start.Location()
	out := make([]string, 0, len(ledger))
	seen := make(map[string]bool, len(ledger))
	for _, entry := range ledger {
		d, err := ParseDate(entry, loc)
		if err != nil {
			continue
		}
		if !c.Contains(d) {
			continue
		}
		key := FormatDate(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
