package vnacal

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// StandardPair - эталонная и измеренная двухпортовые сети одной меры.
type StandardPair struct {
	Standard Standard
	Ideal    *Network
	Measured *Network
}

// Solver вычисляет 12-членную модель ошибок по парам SHORT, OPEN, LOAD, THROUGH
// (ровно в этом порядке).
type Solver interface {
	Solve(pairs []StandardPair) (*ErrorModel, error)
}

// SOLT - решатель 12-членной модели по мерам с известными (не обязательно идеальными)
// параметрами. Изоляция считается нулевой: отдельной меры изоляции нет.
type SOLT struct{}

// Solve реализует Solver.
func (SOLT) Solve(pairs []StandardPair) (*ErrorModel, error) {
	if err := validatePairs(pairs); err != nil {
		return nil, err
	}
	short, open, load, thru := pairs[0], pairs[1], pairs[2], pairs[3]
	freqs := thru.Measured.Frequencies
	count := len(freqs)

	terms := make(map[ErrorTerm][]complex128, len(ErrorTerms))
	for _, t := range ErrorTerms {
		terms[t] = make([]complex128, count)
	}

	for k := 0; k < count; k++ {
		fwd, err := onePortAt(short, open, load, k, 1)
		if err != nil {
			return nil, fmt.Errorf("порт 1, частота %.3f Гц: %w", freqs[k], err)
		}
		rev, err := onePortAt(short, open, load, k, 2)
		if err != nil {
			return nil, fmt.Errorf("порт 2, частота %.3f Гц: %w", freqs[k], err)
		}

		t11, t12 := thru.Ideal.At(k, 1, 1), thru.Ideal.At(k, 1, 2)
		t21, t22 := thru.Ideal.At(k, 2, 1), thru.Ideal.At(k, 2, 2)
		m11, m12 := thru.Measured.At(k, 1, 1), thru.Measured.At(k, 1, 2)
		m21, m22 := thru.Measured.At(k, 2, 1), thru.Measured.At(k, 2, 2)

		elf, etf, err := solveThrough(fwd, m11, m21, t11, t12*t21, t21, t22)
		if err != nil {
			return nil, fmt.Errorf("прямое направление, частота %.3f Гц: %w", freqs[k], err)
		}
		elr, etr, err := solveThrough(rev, m22, m12, t22, t12*t21, t12, t11)
		if err != nil {
			return nil, fmt.Errorf("обратное направление, частота %.3f Гц: %w", freqs[k], err)
		}

		terms[ForwardDirectivity][k] = fwd.directivity
		terms[ForwardSourceMatch][k] = fwd.sourceMatch
		terms[ForwardReflectionTracking][k] = fwd.tracking
		terms[ForwardLoadMatch][k] = elf
		terms[ForwardTransmissionTracking][k] = etf
		terms[ReverseDirectivity][k] = rev.directivity
		terms[ReverseSourceMatch][k] = rev.sourceMatch
		terms[ReverseReflectionTracking][k] = rev.tracking
		terms[ReverseLoadMatch][k] = elr
		terms[ReverseTransmissionTracking][k] = etr
	}

	model := &ErrorModel{Frequencies: cloneFloat64Slice(freqs), Terms: terms}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return model, nil
}

func validatePairs(pairs []StandardPair) error {
	if len(pairs) != len(CalibrationStandards) {
		return fmt.Errorf("для SOLT нужно %d мер, получено %d", len(CalibrationStandards), len(pairs))
	}
	var freqs []float64
	for i, p := range pairs {
		if p.Standard != CalibrationStandards[i] {
			return fmt.Errorf("мера %d: ожидалась %s, получена %s", i+1, CalibrationStandards[i], p.Standard)
		}
		for _, n := range []*Network{p.Ideal, p.Measured} {
			if err := n.Validate(); err != nil {
				return fmt.Errorf("мера %s: %w", p.Standard, err)
			}
			if n.Ports != 2 {
				return fmt.Errorf("мера %s: нужна двухпортовая сеть, портов %d", p.Standard, n.Ports)
			}
			if freqs == nil {
				freqs = n.Frequencies
			} else if !frequenciesMatch(freqs, n.Frequencies) {
				return &SweepMismatchError{What: p.Standard.String()}
			}
		}
	}
	if len(freqs) == 0 {
		return errors.New("получены пустые данные калибровки")
	}
	return nil
}

type oneport struct {
	directivity, sourceMatch, tracking complex128
}

func onePortAt(short, open, load StandardPair, k, port int) (oneport, error) {
	actual := [3]complex128{short.Ideal.At(k, port, port), open.Ideal.At(k, port, port), load.Ideal.At(k, port, port)}
	measured := [3]complex128{short.Measured.At(k, port, port), open.Measured.At(k, port, port), load.Measured.At(k, port, port)}
	return solveOnePort(actual, measured)
}

// solveOnePort находит e00, e11 и e10e01 по трем мерам с известными коэффициентами
// отражения actual. Модель m = e00 + e10e01*a/(1 - e11*a) линейна относительно
// e00, e11 и delta = e00*e11 - e10e01: m = e00 + a*m*e11 - a*delta.
func solveOnePort(actual, measured [3]complex128) (oneport, error) {
	var a [3][3]complex128
	var b [3]complex128
	for i := 0; i < 3; i++ {
		a[i] = [3]complex128{1, actual[i] * measured[i], -actual[i]}
		b[i] = measured[i]
	}
	x, err := solve3x3(a, b)
	if err != nil {
		return oneport{}, err
	}
	return oneport{
		directivity: x[0],
		sourceMatch: x[1],
		tracking:    x[0]*x[1] - x[2],
	}, nil
}

// solveThrough находит согласование нагрузки и коэффициент передачи для одного направления
// по измерению перемычки: отражение mRefl, передача mTrans, параметры перемычки
// (входное отражение tIn, произведение передач tProd, передача tFwd, выходное отражение tOut).
func solveThrough(op oneport, mRefl, mTrans, tIn, tProd, tFwd, tOut complex128) (loadMatch, transTracking complex128, err error) {
	diff := mRefl - op.directivity
	denom := op.tracking + op.sourceMatch*diff
	if denom == 0 {
		return 0, 0, errors.New("деление на ноль при расчете входного отражения перемычки")
	}
	gammaIn := diff / denom

	d := gammaIn - tIn
	denom = tProd + d*tOut
	if denom == 0 {
		return 0, 0, errors.New("деление на ноль при расчете согласования нагрузки")
	}
	loadMatch = d / denom

	if tFwd == 0 {
		return 0, 0, errors.New("перемычка не имеет передачи")
	}
	// Изоляция нулевая, поэтому измеренная передача целиком относится к перемычке.
	transTracking = mTrans * (1 - op.sourceMatch*gammaIn) * (1 - tOut*loadMatch) / tFwd
	return loadMatch, transTracking, nil
}

// singularTolerance - относительный порог главного элемента, ниже которого система
// считается вырожденной.
const singularTolerance = 1e-12

// solve3x3 решает A x = b методом Гаусса с выбором главного элемента по столбцу.
func solve3x3(A [3][3]complex128, b [3]complex128) ([3]complex128, error) {
	var aug [3][4]complex128
	scale := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			aug[i][j] = A[i][j]
			scale = math.Max(scale, cmplx.Abs(A[i][j]))
		}
		aug[i][3] = b[i]
	}

	for col := 0; col < 3; col++ {
		pivot := col
		maxAbs := cmplx.Abs(aug[col][col])
		for r := col + 1; r < 3; r++ {
			if v := cmplx.Abs(aug[r][col]); v > maxAbs {
				maxAbs = v
				pivot = r
			}
		}
		if maxAbs <= singularTolerance*scale {
			return [3]complex128{}, errors.New("вырожденная система: меры неразличимы")
		}
		if pivot != col {
			aug[col], aug[pivot] = aug[pivot], aug[col]
		}
		for r := col + 1; r < 3; r++ {
			factor := aug[r][col] / aug[col][col]
			for c := col; c < 4; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	var x [3]complex128
	for i := 2; i >= 0; i-- {
		sum := aug[i][3]
		for j := i + 1; j < 3; j++ {
			sum -= aug[i][j] * x[j]
		}
		x[i] = sum / aug[i][i]
	}
	return x, nil
}
