package metrics

import "github.com/san-kum/bounce/internal/dynamo"

// Population is the mean number of live balls per frame.
type Population struct {
	name    string
	sum     int
	max     int
	samples int
}

func NewPopulation() *Population {
	return &Population{name: "balls"}
}

func (p *Population) Name() string { return p.name }

func (p *Population) Observe(s dynamo.Snapshot) {
	n := s.Count(dynamo.KindBall)
	p.sum += n
	p.max = max(p.max, n)
	p.samples++
}

func (p *Population) Max() int { return p.max }

func (p *Population) Value() float64 {
	if p.samples == 0 {
		return 0
	}
	return float64(p.sum) / float64(p.samples)
}

func (p *Population) Reset() {
	p.sum = 0
	p.max = 0
	p.samples = 0
}
