package alloc

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// solveTransportLP solves the multi-line transportation problem
//
//	minimize   sum costs[i][j] * x[i][j]
//	subject to sum_j x[i][j] <= caps[i]      (lot capacity)
//	           sum_i x[i][j]  = targets[j]   (line fill target)
//	           x[i][j] >= 0
//
// where i ranges over lots and j over order lines. The result is indexed
// x[i*len(targets)+j]. Greedy per-line allocation is not optimal once
// lines compete for the same lots, so batch runs must go through here.
func solveTransportLP(costs [][]float64, caps, targets []float64) ([]float64, error) {
	n := len(caps)
	m := len(targets)
	nv := n * m

	c := make([]float64, nv)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			c[i*m+j] = costs[i][j]
		}
	}

	// Capacity rows plus explicit nonnegativity rows. lp.Convert treats
	// variables as free, so x >= 0 has to be part of G.
	g := mat.NewDense(n+nv, nv, nil)
	h := make([]float64, n+nv)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			g.Set(i, i*m+j, 1)
		}
		h[i] = caps[i]
	}
	for v := 0; v < nv; v++ {
		g.Set(n+v, v, -1)
		h[n+v] = 0
	}

	a := mat.NewDense(m, nv, nil)
	b := make([]float64, m)
	for j := 0; j < m; j++ {
		for i := 0; i < n; i++ {
			a.Set(j, i*m+j, 1)
		}
		b[j] = targets[j]
	}

	cStd, aStd, bStd := lp.Convert(c, g, h, a, b)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
	if err != nil {
		return nil, err
	}
	x := make([]float64, nv)
	for v := 0; v < nv; v++ {
		val := sol[v]
		if val < 0 {
			val = 0
		}
		x[v] = val
	}
	return x, nil
}

// lpSolve points to the function used to solve the transportation LP. It
// can be overridden in tests to simulate solver failures.
var lpSolve = solveTransportLP
