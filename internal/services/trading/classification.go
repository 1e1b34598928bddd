package trading

// confusion counts binary predictions against direction labels.
type confusion struct {
	tp, fp, tn, fn int
}

func (c *confusion) add(predicted, actual bool) {
	switch {
	case predicted && actual:
		c.tp++
	case predicted && !actual:
		c.fp++
	case !predicted && actual:
		c.fn++
	default:
		c.tn++
	}
}

func (c confusion) total() int { return c.tp + c.fp + c.tn + c.fn }

func (c confusion) accuracy() float64 { return ratio(c.tp+c.tn, c.total()) }

func (c confusion) precision() float64 { return ratio(c.tp, c.tp+c.fp) }

func (c confusion) recall() float64 { return ratio(c.tp, c.tp+c.fn) }

func (c confusion) f1() float64 {
	p, r := c.precision(), c.recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// ratio returns 0 for an empty denominator.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
