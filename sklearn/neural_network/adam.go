package neural_network

import "math"

// adam はパラメータごとに一次・二次モーメントを保持するAdamオプティマイザ
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	t int
	m [][]float64
	v [][]float64
}

func newAdam(lr float64, params [][]float64) *adam {
	a := &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-7,
		m:     make([][]float64, len(params)),
		v:     make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p))
		a.v[i] = make([]float64, len(p))
	}
	return a
}

// step は params をその場で更新する。grads は params と同じ形でなければならない。
func (a *adam) step(params, grads [][]float64) {
	a.t++
	b1Corr := 1 - math.Pow(a.beta1, float64(a.t))
	b2Corr := 1 - math.Pow(a.beta2, float64(a.t))

	for i, p := range params {
		mi, vi, gi := a.m[i], a.v[i], grads[i]
		for j := range p {
			g := gi[j]
			mi[j] = a.beta1*mi[j] + (1-a.beta1)*g
			vi[j] = a.beta2*vi[j] + (1-a.beta2)*g*g
			mhat := mi[j] / b1Corr
			vhat := vi[j] / b2Corr
			p[j] -= a.lr * mhat / (math.Sqrt(vhat) + a.eps)
		}
	}
}
