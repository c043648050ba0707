package selection

// Scored is a candidate with a computed metric
type Scored struct {
	Candidate
	Value  float64
	Inputs map[string]float64
}

// Screen computes the metric for every candidate and drops the ones it
// cannot compute. Returned slices keep candidate order.
// ⭐ SSOT: 지표 계산 불가 종목 제외는 여기서만
func Screen(candidates []Candidate, fn MetricFunc) (scored []Scored, dropped []string) {
	scored = make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		value, inputs, ok := fn(c)
		if !ok {
			dropped = append(dropped, c.Row.Code)
			continue
		}
		scored = append(scored, Scored{Candidate: c, Value: value, Inputs: inputs})
	}
	return scored, dropped
}
