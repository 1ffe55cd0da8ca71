// Package matrix provides the dense row-major matrix used by layers and the trainer.
//
// A Matrix is immutable: every operation returns a new matrix and never
// touches its operands. Storage is a gonum mat.Dense.
package matrix

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when operand dimensions are incompatible.
var ErrShapeMismatch = errors.New("matrix: shape mismatch")

// Matrix is a dense rows×cols matrix of float64 values.
type Matrix struct {
	d *mat.Dense
}

func wrap(d *mat.Dense) *Matrix {
	return &Matrix{d: d}
}

func checkDims(rows, cols int) {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("matrix: invalid dimensions %dx%d", rows, cols))
	}
}

// Zeros returns a rows×cols matrix with every entry 0.
// It panics if either dimension is not positive.
func Zeros(rows, cols int) *Matrix {
	checkDims(rows, cols)
	return wrap(mat.NewDense(rows, cols, nil))
}

// Random returns a rows×cols matrix with entries drawn uniformly from [-1, 1).
// A nil rng uses the math/rand global source.
func Random(rows, cols int, rng *rand.Rand) *Matrix {
	checkDims(rows, cols)
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = uniform(rng)*2 - 1
	}
	return wrap(mat.NewDense(rows, cols, data))
}

// He returns a rows×cols matrix sampled from N(0, sqrt(2/cols)).
// cols is the fan-in. Suited to ReLU layers.
func He(rows, cols int, rng *rand.Rand) *Matrix {
	return normal(rows, cols, math.Sqrt(2/float64(cols)), rng)
}

// Xavier returns a rows×cols matrix sampled from N(0, sqrt(1/cols)).
// cols is the fan-in. Suited to Sigmoid and Identity layers.
func Xavier(rows, cols int, rng *rand.Rand) *Matrix {
	return normal(rows, cols, math.Sqrt(1/float64(cols)), rng)
}

func normal(rows, cols int, stdDev float64, rng *rand.Rand) *Matrix {
	checkDims(rows, cols)
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = standardNormal(rng) * stdDev
	}
	return wrap(mat.NewDense(rows, cols, data))
}

// standardNormal draws one N(0, 1) sample with the Box-Muller transform.
// Both uniforms lie in (0, 1] so the logarithm stays finite.
func standardNormal(rng *rand.Rand) float64 {
	u1 := 1 - uniform(rng)
	u2 := 1 - uniform(rng)
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func uniform(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}

// FromRows builds a matrix from a slice of equally sized rows.
// The data is copied.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrShapeMismatch)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d entries, want %d", ErrShapeMismatch, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return wrap(mat.NewDense(len(rows), cols, data)), nil
}

// Row builds a 1×len(v) matrix. The data is copied.
// It panics if v is empty.
func Row(v []float64) *Matrix {
	checkDims(1, len(v))
	data := make([]float64, len(v))
	copy(data, v)
	return wrap(mat.NewDense(1, len(v), data))
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (rows, cols int) {
	return m.d.Dims()
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int {
	r, _ := m.d.Dims()
	return r
}

// Cols returns the number of columns.
func (m *Matrix) Cols() int {
	_, c := m.d.Dims()
	return c
}

// At returns the entry at (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.d.At(i, j)
}

// RowAt returns a copy of row i.
func (m *Matrix) RowAt(i int) []float64 {
	return mat.Row(nil, i, m.d)
}

// ToRows returns a copy of the matrix as a slice of rows.
func (m *Matrix) ToRows() [][]float64 {
	r := m.Rows()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = m.RowAt(i)
	}
	return out
}

func (m *Matrix) sameShape(o *Matrix, op string) error {
	r1, c1 := m.Dims()
	r2, c2 := o.Dims()
	if r1 != r2 || c1 != c2 {
		return fmt.Errorf("%w: %s %dx%d and %dx%d", ErrShapeMismatch, op, r1, c1, r2, c2)
	}
	return nil
}

// Add returns m + o. Both operands must have identical shape.
func (m *Matrix) Add(o *Matrix) (*Matrix, error) {
	if err := m.sameShape(o, "add"); err != nil {
		return nil, err
	}
	var res mat.Dense
	res.Add(m.d, o.d)
	return wrap(&res), nil
}

// Sub returns m - o. Both operands must have identical shape.
func (m *Matrix) Sub(o *Matrix) (*Matrix, error) {
	if err := m.sameShape(o, "sub"); err != nil {
		return nil, err
	}
	var res mat.Dense
	res.Sub(m.d, o.d)
	return wrap(&res), nil
}

// Hadamard returns the element-wise product of m and o.
func (m *Matrix) Hadamard(o *Matrix) (*Matrix, error) {
	if err := m.sameShape(o, "hadamard"); err != nil {
		return nil, err
	}
	var res mat.Dense
	res.MulElem(m.d, o.d)
	return wrap(&res), nil
}

// Mul returns the matrix product m·o. m.Cols() must equal o.Rows().
func (m *Matrix) Mul(o *Matrix) (*Matrix, error) {
	r1, c1 := m.Dims()
	r2, c2 := o.Dims()
	if c1 != r2 {
		return nil, fmt.Errorf("%w: mul %dx%d by %dx%d", ErrShapeMismatch, r1, c1, r2, c2)
	}
	var res mat.Dense
	res.Mul(m.d, o.d)
	return wrap(&res), nil
}

// Scale returns f·m.
func (m *Matrix) Scale(f float64) *Matrix {
	var res mat.Dense
	res.Scale(f, m.d)
	return wrap(&res)
}

// T returns the transpose of m.
func (m *Matrix) T() *Matrix {
	return wrap(mat.DenseCopyOf(m.d.T()))
}

// Map returns a matrix of the same shape with f applied to every entry.
func (m *Matrix) Map(f func(float64) float64) *Matrix {
	var res mat.Dense
	res.Apply(func(_, _ int, v float64) float64 { return f(v) }, m.d)
	return wrap(&res)
}

// MapRows returns a matrix of the same shape where each row is produced by f.
// f receives a copy of the source row and must fill dst, which has the same length.
func (m *Matrix) MapRows(f func(dst, src []float64)) *Matrix {
	r, c := m.Dims()
	res := mat.NewDense(r, c, nil)
	dst := make([]float64, c)
	for i := 0; i < r; i++ {
		f(dst, m.RowAt(i))
		res.SetRow(i, dst)
	}
	return wrap(res)
}

// EqualApprox reports whether m and o have the same shape and all entries
// within tol of each other.
func (m *Matrix) EqualApprox(o *Matrix, tol float64) bool {
	return mat.EqualApprox(m.d, o.d, tol)
}

// String formats the matrix for debugging.
func (m *Matrix) String() string {
	return fmt.Sprintf("%v", mat.Formatted(m.d, mat.Squeeze()))
}
