package intent

// Tiers bound the aggregate confidence by how strongly backends agree.
type Tiers struct {
	UnanimousFloor    float64
	MajorityFloor     float64
	MajorityCeiling   float64
	NoMajorityCeiling float64
}

func DefaultTiers() Tiers {
	return Tiers{UnanimousFloor: 0.95, MajorityFloor: 0.85, MajorityCeiling: 0.94, NoMajorityCeiling: 0.60}
}

func (t Tiers) withDefaults() Tiers {
	d := DefaultTiers()
	if t.UnanimousFloor <= 0 {
		t.UnanimousFloor = d.UnanimousFloor
	}
	if t.MajorityFloor <= 0 {
		t.MajorityFloor = d.MajorityFloor
	}
	if t.MajorityCeiling <= 0 {
		t.MajorityCeiling = d.MajorityCeiling
	}
	if t.NoMajorityCeiling <= 0 {
		t.NoMajorityCeiling = d.NoMajorityCeiling
	}
	return t
}

type group struct {
	intent Intent
	count  int
	sum    float64 // weight * confidence
	weight float64
}

func (g group) mean() float64 {
	if g.weight <= 0 {
		return 0
	}
	return g.sum / g.weight
}

// Aggregate turns votes into one intent. The winner has the highest weighted
// confidence sum; equal sums fall back to intent priority. Agreement is then
// counted in votes, not weight. A lone responding backend is unanimous.
func Aggregate(votes []Vote, configured int, tiers Tiers) (Result, error) {
	tiers = tiers.withDefaults()
	res := Result{Intent: Unknown, Responded: len(votes), Configured: configured, Votes: votes}
	if len(votes) == 0 {
		return res, ErrClassifierUnavailable
	}

	groups := map[Intent]*group{}
	for _, v := range votes {
		w := v.Weight
		if w <= 0 {
			w = 1
		}
		g := groups[v.Intent]
		if g == nil {
			g = &group{intent: v.Intent}
			groups[v.Intent] = g
		}
		g.count++
		g.sum += w * v.Confidence
		g.weight += w
	}

	var best *group
	for _, i := range priority {
		g := groups[i]
		if g == nil {
			continue
		}
		if best == nil || g.sum > best.sum {
			best = g
		}
	}

	n, k, mean := len(votes), best.count, best.mean()
	res.Agreement = k
	switch {
	case k == n:
		res.Intent = best.intent
		res.Confidence = min(max(mean, tiers.UnanimousFloor), 1)
	case 2*k > n:
		res.Intent = best.intent
		res.Confidence = min(max(mean, tiers.MajorityFloor), tiers.MajorityCeiling)
	default:
		res.Intent = Unknown
		res.Confidence = min(mean, tiers.NoMajorityCeiling)
	}
	return res, nil
}
