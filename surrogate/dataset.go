package surrogate

// Dataset accumulates real evaluations. Targets are normalized by the
// running max before training so thresholds are comparable across
// generations.
type Dataset struct {
	X   [][]float64
	Y   []float64
	Max float64
}

// Add records one sample.
func (d *Dataset) Add(x []float64, y float64) {
	d.X = append(d.X, append([]float64(nil), x...))
	d.Y = append(d.Y, y)
	d.Max = max(d.Max, y)
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Normalize maps a raw target into the training scale.
func (d *Dataset) Normalize(y float64) float64 {
	if d.Max <= 0 {
		return 0
	}

	return y / d.Max
}

// Fit trains m on the normalized samples.
func (d *Dataset) Fit(m *Model) error {
	y := make([]float64, len(d.Y))
	for i, v := range d.Y {
		y[i] = d.Normalize(v)
	}

	return m.Train(d.X, y)
}
