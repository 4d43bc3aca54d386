// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hessian

import (
	"errors"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Factorizer is a two-phase symmetric positive definite solver.
//
// Analyze inspects the sparsity structure once; Factorize then only updates
// the numeric values every iteration. Entries outside the analyzed structure
// are assumed to remain zero.
type Factorizer interface {
	Analyze(a mat.Symmetric)
	Factorize(a mat.Symmetric) bool
	SolveVecTo(dst *mat.VecDense, b mat.Vector) error
	SolveTo(dst *mat.Dense, b mat.Matrix) error
}

var errNotFactorized = errors.New("hessian: matrix not factorized")

// DenseCholesky factorizes the whole matrix with a dense Cholesky decomposition.
type DenseCholesky struct {
	chol mat.Cholesky
	ok   bool
}

func (c *DenseCholesky) Analyze(mat.Symmetric) {}

func (c *DenseCholesky) Factorize(a mat.Symmetric) bool {
	c.ok = c.chol.Factorize(a)
	return c.ok
}

func (c *DenseCholesky) SolveVecTo(dst *mat.VecDense, b mat.Vector) error {
	if !c.ok {
		return errNotFactorized
	}
	return c.chol.SolveVecTo(dst, b)
}

func (c *DenseCholesky) SolveTo(dst *mat.Dense, b mat.Matrix) error {
	if !c.ok {
		return errNotFactorized
	}
	return c.chol.SolveTo(dst, b)
}

// BlockCholesky factorizes a block diagonal matrix (up to a symmetric permutation)
// by factorizing each independent block separately.
//
// Analyze discovers the blocks as the connected components of the nonzero pattern.
// Factorize runs Analyze itself when the structure was not analyzed yet.
type BlockCholesky struct {
	// Entries with |aᵢⱼ| ≤ Tol are treated as structural zeros by Analyze.
	Tol float64

	n      int
	blocks [][]int
	sub    []*mat.SymDense
	chol   []mat.Cholesky
	rhs    []*mat.VecDense
	sol    []*mat.VecDense
	ok     bool
}

// Blocks returns the index sets of the analyzed blocks.
func (c *BlockCholesky) Blocks() [][]int {
	return c.blocks
}

func (c *BlockCholesky) Analyze(a mat.Symmetric) {
	n := a.SymmetricDim()

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(a.At(i, j)) > c.Tol {
				if ri, rj := find(i), find(j); ri != rj {
					parent[max(ri, rj)] = min(ri, rj)
				}
			}
		}
	}

	index := make(map[int]int)
	c.blocks = c.blocks[:0]
	for i := 0; i < n; i++ {
		r := find(i)
		k, seen := index[r]
		if !seen {
			k = len(c.blocks)
			index[r] = k
			c.blocks = append(c.blocks, nil)
		}
		c.blocks[k] = append(c.blocks[k], i)
	}
	slices.SortFunc(c.blocks, func(x, y []int) int { return x[0] - y[0] })

	c.n = n
	c.sub = make([]*mat.SymDense, len(c.blocks))
	c.chol = make([]mat.Cholesky, len(c.blocks))
	c.rhs = make([]*mat.VecDense, len(c.blocks))
	c.sol = make([]*mat.VecDense, len(c.blocks))
	for k, b := range c.blocks {
		c.sub[k] = mat.NewSymDense(len(b), nil)
		c.rhs[k] = mat.NewVecDense(len(b), nil)
		c.sol[k] = mat.NewVecDense(len(b), nil)
	}
	c.ok = false
}

func (c *BlockCholesky) Factorize(a mat.Symmetric) bool {
	if c.blocks == nil || a.SymmetricDim() != c.n {
		c.Analyze(a)
	}
	c.ok = false
	for k, b := range c.blocks {
		s := c.sub[k]
		for i, bi := range b {
			for j := i; j < len(b); j++ {
				s.SetSym(i, j, a.At(bi, b[j]))
			}
		}
		if !c.chol[k].Factorize(s) {
			return false
		}
	}
	c.ok = true
	return true
}

func (c *BlockCholesky) SolveVecTo(dst *mat.VecDense, b mat.Vector) error {
	if !c.ok {
		return errNotFactorized
	}
	if b.Len() != c.n {
		panic(mat.ErrShape)
	}
	if dst.IsEmpty() {
		dst.ReuseAsVec(c.n)
	}
	var err error
	for k, blk := range c.blocks {
		r, s := c.rhs[k], c.sol[k]
		for i, bi := range blk {
			r.SetVec(i, b.AtVec(bi))
		}
		if e := c.chol[k].SolveVecTo(s, r); e != nil && err == nil {
			err = e
		}
		for i, bi := range blk {
			dst.SetVec(bi, s.AtVec(i))
		}
	}
	return err
}

func (c *BlockCholesky) SolveTo(dst *mat.Dense, b mat.Matrix) error {
	if !c.ok {
		return errNotFactorized
	}
	rows, cols := b.Dims()
	if rows != c.n {
		panic(mat.ErrShape)
	}
	if dst.IsEmpty() {
		dst.ReuseAs(rows, cols)
	}
	var err error
	for col := 0; col < cols; col++ {
		for k, blk := range c.blocks {
			r, s := c.rhs[k], c.sol[k]
			for i, bi := range blk {
				r.SetVec(i, b.At(bi, col))
			}
			if e := c.chol[k].SolveVecTo(s, r); e != nil && err == nil {
				err = e
			}
			for i, bi := range blk {
				dst.Set(bi, col, s.AtVec(i))
			}
		}
	}
	return err
}
