package graph

// Impact scoring coefficients.
const (
	inDegreeWeight  = 1.0
	outDegreeWeight = 0.5
	kindWeight      = 0.25
)

// degree accumulates the incident-edge statistics of one pattern.
type degree struct {
	in        int
	out       int
	weightSum float64
	kinds     map[Kind]struct{}
}

func (d *degree) add(e *Edge, incoming bool) {
	if incoming {
		d.in++
	} else {
		d.out++
	}
	d.weightSum += e.Weight
	if d.kinds == nil {
		d.kinds = make(map[Kind]struct{}, 1)
	}
	d.kinds[e.Kind] = struct{}{}
}

// Impact computes a pattern's impact score.
//
// Every term is non-negative and grows with its input, so adding an edge
// with a non-negative weight never lowers either endpoint's score.
func Impact(in, out int, weightSum float64, distinctKinds int) float64 {
	return inDegreeWeight*float64(in) +
		outDegreeWeight*float64(out) +
		weightSum +
		kindWeight*float64(distinctKinds)
}

func (d *degree) impact() float64 {
	return Impact(d.in, d.out, d.weightSum, len(d.kinds))
}
