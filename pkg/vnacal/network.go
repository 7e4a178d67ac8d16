package vnacal

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Network - S-параметры n-портовой цепи на общей частотной сетке.
// S[k] хранит матрицу Ports x Ports для точки k построчно: S[k][i*Ports+j] = S(i+1)(j+1).
// После получения сеть не изменяется; все преобразования возвращают новую сеть.
type Network struct {
	Name        string
	Frequencies []float64
	Ports       int
	S           [][]complex128
}

// NewNetwork создает сеть с нулевыми S-параметрами.
func NewNetwork(name string, frequencies []float64, ports int) *Network {
	n := &Network{
		Name:        name,
		Frequencies: cloneFloat64Slice(frequencies),
		Ports:       ports,
		S:           make([][]complex128, len(frequencies)),
	}
	for k := range n.S {
		n.S[k] = make([]complex128, ports*ports)
	}
	return n
}

// Points возвращает число частотных точек.
func (n *Network) Points() int { return len(n.Frequencies) }

// At возвращает S(i)(j) в точке k. Порты нумеруются с 1.
func (n *Network) At(k, i, j int) complex128 {
	return n.S[k][(i-1)*n.Ports+(j-1)]
}

func (n *Network) set(k, i, j int, v complex128) {
	n.S[k][(i-1)*n.Ports+(j-1)] = v
}

// Param возвращает S(i)(j) по всем частотам.
func (n *Network) Param(i, j int) []complex128 {
	out := make([]complex128, n.Points())
	for k := range out {
		out[k] = n.At(k, i, j)
	}
	return out
}

// Validate проверяет согласованность размеров.
func (n *Network) Validate() error {
	if n == nil {
		return errors.New("сеть не задана")
	}
	if n.Ports <= 0 {
		return fmt.Errorf("сеть %q: некорректное число портов %d", n.Name, n.Ports)
	}
	if len(n.S) != len(n.Frequencies) {
		return fmt.Errorf("сеть %q: %d матриц на %d частот", n.Name, len(n.S), len(n.Frequencies))
	}
	for k, m := range n.S {
		if len(m) != n.Ports*n.Ports {
			return fmt.Errorf("сеть %q: точка %d содержит %d значений, ожидалось %d", n.Name, k, len(m), n.Ports*n.Ports)
		}
	}
	return nil
}

// Clone возвращает глубокую копию.
func (n *Network) Clone() *Network {
	c := &Network{
		Name:        n.Name,
		Frequencies: cloneFloat64Slice(n.Frequencies),
		Ports:       n.Ports,
		S:           make([][]complex128, len(n.S)),
	}
	for k := range n.S {
		c.S[k] = cloneComplexSlice(n.S[k])
	}
	return c
}

// Flipped меняет порядок портов двухпортовой сети на обратный (S11<->S22, S21<->S12).
func (n *Network) Flipped() (*Network, error) {
	if n.Ports != 2 {
		return nil, fmt.Errorf("сеть %q: переворот определен только для двухпортовой сети, портов %d", n.Name, n.Ports)
	}
	f := NewNetwork(n.Name, n.Frequencies, 2)
	for k := range n.S {
		f.set(k, 1, 1, n.At(k, 2, 2))
		f.set(k, 1, 2, n.At(k, 2, 1))
		f.set(k, 2, 1, n.At(k, 1, 2))
		f.set(k, 2, 2, n.At(k, 1, 1))
	}
	return f, nil
}

// TwoPortReflect составляет двухпортовую сеть из двух однопортовых отражающих нагрузок:
// S11 берется из a, S22 из b, передаточные члены равны нулю.
func TwoPortReflect(a, b *Network) (*Network, error) {
	if a.Ports != 1 || b.Ports != 1 {
		return nil, fmt.Errorf("для составления отражающей пары нужны однопортовые сети, получено %d и %d портов", a.Ports, b.Ports)
	}
	if !frequenciesMatch(a.Frequencies, b.Frequencies) {
		return nil, &SweepMismatchError{What: a.Name + "/" + b.Name}
	}
	n := NewNetwork(a.Name+","+b.Name, a.Frequencies, 2)
	for k := range n.S {
		n.set(k, 1, 1, a.At(k, 1, 1))
		n.set(k, 2, 2, b.At(k, 1, 1))
	}
	return n, nil
}

// Interpolate пересчитывает сеть на частоты freqs линейной интерполяцией комплексных
// значений. Частоты вне диапазона сети дают SweepMismatchError.
func (n *Network) Interpolate(freqs []float64) (*Network, error) {
	if frequenciesMatch(n.Frequencies, freqs) {
		return n.Clone(), nil
	}
	if n.Points() == 0 {
		return nil, &SweepMismatchError{What: n.Name}
	}
	lo, hi := n.Frequencies[0], n.Frequencies[n.Points()-1]
	out := NewNetwork(n.Name, freqs, n.Ports)
	for k, f := range freqs {
		if f < lo-frequencyTolerance || f > hi+frequencyTolerance {
			return nil, &SweepMismatchError{What: n.Name, Frequency: f}
		}
		idx := sort.SearchFloat64s(n.Frequencies, f)
		switch {
		case idx < n.Points() && math.Abs(n.Frequencies[idx]-f) <= frequencyTolerance:
			copy(out.S[k], n.S[idx])
			continue
		case idx == 0:
			copy(out.S[k], n.S[0])
			continue
		case idx >= n.Points():
			copy(out.S[k], n.S[n.Points()-1])
			continue
		}
		f0, f1 := n.Frequencies[idx-1], n.Frequencies[idx]
		t := complex((f-f0)/(f1-f0), 0)
		for m := range out.S[k] {
			out.S[k][m] = n.S[idx-1][m] + t*(n.S[idx][m]-n.S[idx-1][m])
		}
	}
	return out, nil
}

// frequencyTolerance - допуск сравнения частот, Гц.
const frequencyTolerance = 1e-3

func cloneFloat64Slice(src []float64) []float64 {
	if src == nil {
		return nil
	}
	dst := make([]float64, len(src))
	copy(dst, src)
	return dst
}

func cloneComplexSlice(src []complex128) []complex128 {
	if src == nil {
		return nil
	}
	dst := make([]complex128, len(src))
	copy(dst, src)
	return dst
}

func frequenciesMatch(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > frequencyTolerance {
			return false
		}
	}
	return true
}
