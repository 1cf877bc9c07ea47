package roster

// ArrivalDetector diffs successive waiting-partition id sets. The first
// observation only primes the baseline.
type ArrivalDetector struct {
	primed bool
	prev   map[string]struct{}
}

// Observe records ids as the current waiting set and returns the ids that were
// absent from the previous one, in input order.
func (d *ArrivalDetector) Observe(ids []string) []string {
	current := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		current[id] = struct{}{}
	}

	var arrived []string
	if d.primed {
		for _, id := range ids {
			if _, ok := d.prev[id]; !ok {
				arrived = append(arrived, id)
			}
		}
	}

	d.prev = current
	d.primed = true
	return arrived
}

func (d *ArrivalDetector) Primed() bool {
	return d.primed
}
