package vnacal

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"strconv"
	"strings"
	"time"
)

type touchstoneOptions struct {
	scale  float64
	format string
}

// ReadTouchstone разбирает данные в формате Touchstone 1.x (.s1p, .s2p, ...).
// Для двухпортовой сети столбцы идут в порядке S11 S21 S12 S22, для остальных построчно.
func ReadTouchstone(r io.Reader, ports int, name string) (*Network, error) {
	if ports <= 0 {
		return nil, fmt.Errorf("touchstone %s: некорректное число портов %d", name, ports)
	}
	opts := touchstoneOptions{scale: 1e9, format: "MA"}
	perRecord := 1 + 2*ports*ports

	var values []float64
	seenOptions := false
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '!'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if seenOptions {
				continue
			}
			seenOptions = true
			if err := opts.parse(line); err != nil {
				return nil, fmt.Errorf("touchstone %s, строка %d: %w", name, lineNo, err)
			}
			continue
		}
		for _, f := range strings.Fields(line) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("touchstone %s, строка %d: не удалось распарсить %q", name, lineNo, f)
			}
			values = append(values, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("touchstone %s: ошибка чтения: %w", name, err)
	}
	if len(values) == 0 || len(values)%perRecord != 0 {
		return nil, fmt.Errorf("touchstone %s: %d значений не делятся на записи по %d", name, len(values), perRecord)
	}

	points := len(values) / perRecord
	freqs := make([]float64, points)
	for k := range freqs {
		freqs[k] = values[k*perRecord] * opts.scale
	}
	n := NewNetwork(name, freqs, ports)
	for k := 0; k < points; k++ {
		rec := values[k*perRecord+1 : (k+1)*perRecord]
		for m := 0; m < ports*ports; m++ {
			i, j := m/ports+1, m%ports+1
			if ports == 2 {
				i, j = m%2+1, m/2+1
			}
			n.set(k, i, j, opts.complex(rec[2*m], rec[2*m+1]))
		}
	}
	for k := 1; k < points; k++ {
		if freqs[k] <= freqs[k-1] {
			return nil, fmt.Errorf("touchstone %s: частоты не возрастают в точке %d", name, k)
		}
	}
	return n, nil
}

func (o *touchstoneOptions) parse(line string) error {
	fields := strings.Fields(strings.ToUpper(strings.TrimPrefix(line, "#")))
	for i := 0; i < len(fields); i++ {
		switch f := fields[i]; f {
		case "HZ":
			o.scale = 1
		case "KHZ":
			o.scale = 1e3
		case "MHZ":
			o.scale = 1e6
		case "GHZ":
			o.scale = 1e9
		case "S":
		case "Y", "Z", "H", "G":
			return fmt.Errorf("параметры %s не поддерживаются", f)
		case "RI", "MA", "DB":
			o.format = f
		case "R":
			if i+1 >= len(fields) {
				return fmt.Errorf("после R нет сопротивления")
			}
			z0, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil || z0 <= 0 {
				return fmt.Errorf("некорректное сопротивление %q", fields[i+1])
			}
			i++
		default:
			return fmt.Errorf("неизвестное поле %q в строке параметров", f)
		}
	}
	return nil
}

func (o *touchstoneOptions) complex(a, b float64) complex128 {
	switch o.format {
	case "RI":
		return complex(a, b)
	case "DB":
		return cmplx.Rect(math.Pow(10, a/20), b*math.Pi/180)
	default:
		return cmplx.Rect(a, b*math.Pi/180)
	}
}

// WriteTouchstone записывает сеть в формате Touchstone 1.x (Гц, RI, 50 Ом).
func WriteTouchstone(w io.Writer, n *Network) error {
	if err := n.Validate(); err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("! vnacal export: " + n.Name + "\n")
	sb.WriteString("! Date: " + time.Now().Format(time.RFC3339) + "\n")
	sb.WriteString("# Hz S RI R 50\n")
	for k, f := range n.Frequencies {
		sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		for m := 0; m < n.Ports*n.Ports; m++ {
			i, j := m/n.Ports+1, m%n.Ports+1
			if n.Ports == 2 {
				i, j = m%2+1, m/2+1
			}
			v := n.At(k, i, j)
			sb.WriteString(fmt.Sprintf(" %.9e %.9e", real(v), imag(v)))
		}
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
