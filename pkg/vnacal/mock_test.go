package vnacal

import (
	"bytes"
	"fmt"
	"math/cmplx"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/momentics/vnacal/internal/util"
	"github.com/momentics/vnacal/pkg/scpi"
)

// scriptedPort отвечает на команды, как прибор: каждая записанная строка передается
// в respond, непустой ответ становится доступен для чтения.
type scriptedPort struct {
	mu       sync.Mutex
	term     string
	pending  bytes.Buffer
	read     bytes.Buffer
	raw      bytes.Buffer
	commands []string
	respond  func(cmd string) string
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.read.Len() == 0 {
		return 0, util.ErrTimeout
	}
	return p.read.Read(b)
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raw.Write(b)
	p.pending.Write(b)
	for {
		data := p.pending.Bytes()
		i := bytes.Index(data, []byte(p.term))
		if i < 0 {
			break
		}
		cmd := string(data[:i])
		p.pending.Next(i + len(p.term))
		p.commands = append(p.commands, cmd)
		if p.respond != nil {
			p.read.WriteString(p.respond(cmd))
		}
	}
	return len(b), nil
}

func (p *scriptedPort) Close() error                         { return nil }
func (p *scriptedPort) SetReadTimeout(t time.Duration) error { return nil }

func (p *scriptedPort) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

func (p *scriptedPort) Raw() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.raw.Bytes()...)
}

func newScriptedLink(t *testing.T, term string, respond func(cmd string) string) (*scpi.Link, *scriptedPort) {
	t.Helper()
	port := &scriptedPort{term: term, respond: respond}
	link, err := scpi.NewLink(port, scpi.Options{WriteTermination: term, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewLink failed: %v", err)
	}
	return link, port
}

// errorTerms - набор членов модели ошибок для имитации анализатора.
type errorTerms struct {
	edf, esf, erf, elf, etf complex128
	edr, esr, err, elr, etr complex128
}

var benchTerms = errorTerms{
	edf: complex(0.05, 0.01), esf: complex(0.1, -0.05), erf: complex(0.9, 0.1),
	elf: complex(0.08, 0.02), etf: complex(0.85, -0.1),
	edr: complex(0.04, -0.02), esr: complex(0.07, 0.03), err: complex(0.88, -0.05),
	elr: complex(0.06, -0.01), etr: complex(0.8, 0.05),
}

// at возвращает члены в точке k; трекинг слегка поворачивается с частотой.
func (e errorTerms) at(k int) errorTerms {
	rot := cmplx.Rect(1, -0.1*float64(k))
	e.erf *= rot
	e.err *= rot
	e.etf *= rot
	e.etr *= rot
	return e
}

func (e errorTerms) value(t ErrorTerm) complex128 {
	switch t {
	case ForwardDirectivity:
		return e.edf
	case ForwardSourceMatch:
		return e.esf
	case ForwardReflectionTracking:
		return e.erf
	case ForwardLoadMatch:
		return e.elf
	case ForwardTransmissionTracking:
		return e.etf
	case ReverseDirectivity:
		return e.edr
	case ReverseSourceMatch:
		return e.esr
	case ReverseReflectionTracking:
		return e.err
	case ReverseLoadMatch:
		return e.elr
	case ReverseTransmissionTracking:
		return e.etr
	}
	return 0
}

// embed возвращает то, что анализатор с членами ошибок e измерит на цепи dut.
func embed(dut *Network, terms errorTerms) *Network {
	m := NewNetwork(dut.Name, dut.Frequencies, 2)
	for k := range dut.S {
		e := terms.at(k)
		s11, s12 := dut.At(k, 1, 1), dut.At(k, 1, 2)
		s21, s22 := dut.At(k, 2, 1), dut.At(k, 2, 2)

		gin := s11 + s12*s21*e.elf/(1-s22*e.elf)
		m.set(k, 1, 1, e.edf+e.erf*gin/(1-e.esf*gin))
		m.set(k, 2, 1, e.etf*s21/((1-s22*e.elf)*(1-e.esf*gin)))

		gout := s22 + s12*s21*e.elr/(1-s11*e.elr)
		m.set(k, 2, 2, e.edr+e.err*gout/(1-e.esr*gout))
		m.set(k, 1, 2, e.etr*s12/((1-s11*e.elr)*(1-e.esr*gout)))
	}
	return m
}

var benchFrequencies = []float64{1e9, 2e9, 3e9}

// oneportIdeal - эталон отражающей меры std на порту port.
func oneportIdeal(std Standard, port int, freqs []float64) *Network {
	n := NewNetwork(IdealLabel(std, port, 0), freqs, 1)
	for k := range freqs {
		x := float64(k)
		var g complex128
		switch std {
		case StandardShort:
			g = complex(-0.99, 0.01*x+0.001*float64(port))
		case StandardOpen:
			g = complex(0.99, -0.02*x-0.001*float64(port))
		case StandardLoad:
			g = complex(0.01, 0.005)
		}
		n.set(k, 1, 1, g)
	}
	return n
}

// throughIdeal - несимметричная перемычка, чтобы ошибка ориентации была заметна.
func throughIdeal(lo, hi int, freqs []float64) *Network {
	n := NewNetwork(IdealLabel(StandardThrough, lo, hi), freqs, 2)
	for k := range freqs {
		rot := cmplx.Rect(1, -0.3*float64(k+1))
		n.set(k, 1, 1, complex(0.02, 0.01))
		n.set(k, 2, 2, complex(0.03, -0.01))
		n.set(k, 2, 1, 0.9*rot)
		n.set(k, 1, 2, 0.85*rot)
	}
	return n
}

// fakeCalUnit имитирует LibreCAL с ports портами.
type fakeCalUnit struct {
	ports    int
	state    map[int]Standard
	partner  map[int]int
	ideals   map[string]*Network
	actual   map[string]*Network // физические меры, их видит анализатор
	commands []string
}

func newFakeCalUnit(ports int, freqs []float64) *fakeCalUnit {
	c := &fakeCalUnit{
		ports:   ports,
		state:   map[int]Standard{},
		partner: map[int]int{},
		ideals:  map[string]*Network{},
		actual:  map[string]*Network{},
	}
	for p := 1; p <= ports; p++ {
		c.state[p] = StandardNone
		for _, std := range []Standard{StandardShort, StandardOpen, StandardLoad} {
			c.ideals[IdealLabel(std, p, 0)] = oneportIdeal(std, p, freqs)
		}
		for q := p + 1; q <= ports; q++ {
			c.ideals[IdealLabel(StandardThrough, p, q)] = throughIdeal(p, q, freqs)
		}
	}
	for label, n := range c.ideals {
		c.actual[label] = n.Clone()
	}
	return c
}

func (c *fakeCalUnit) SetPort(port int, std Standard, through int) error {
	if port < 1 || port > c.ports {
		return fmt.Errorf("нет порта %d", port)
	}
	c.commands = append(c.commands, fmt.Sprintf("%d %s %d", port, std, through))
	if old, ok := c.partner[port]; ok {
		delete(c.partner, old)
		delete(c.partner, port)
		c.state[old] = StandardNone
	}
	c.state[port] = std
	if std == StandardThrough {
		c.state[through] = StandardThrough
		c.partner[port] = through
		c.partner[through] = port
	}
	return nil
}

func (c *fakeCalUnit) IdealNetwork(label string) (*Network, error) {
	n, ok := c.ideals[label]
	if !ok {
		return nil, fmt.Errorf("нет коэффициента %s", label)
	}
	return n.Clone(), nil
}

// dut возвращает цепь, которую видит анализатор, если его порты 1 и 2 подключены
// к портам CalUnit a и b.
func (c *fakeCalUnit) dut(a, b int, freqs []float64) *Network {
	if c.state[a] == StandardThrough && c.partner[a] == b {
		lo, hi := a, b
		if lo > hi {
			lo, hi = hi, lo
		}
		n := c.actual[IdealLabel(StandardThrough, lo, hi)]
		if a > b {
			n, _ = n.Flipped()
		}
		return n
	}
	n := NewNetwork("dut", freqs, 2)
	for k := range freqs {
		n.set(k, 1, 1, c.reflection(a, k))
		n.set(k, 2, 2, c.reflection(b, k))
	}
	return n
}

func (c *fakeCalUnit) reflection(port, k int) complex128 {
	std := c.state[port]
	if !std.Reflective() {
		return complex(0.02, 0)
	}
	return c.actual[IdealLabel(std, port, 0)].At(k, 1, 1)
}

// fakeAnalyzer имитирует PNA, порты которого подключены к портам CalUnit wiring[0] и wiring[1].
type fakeAnalyzer struct {
	calunit *fakeCalUnit
	wiring  [2]int
	freqs   []float64
	terms   errorTerms

	continuous, correction bool
	triggered              bool
	calls                  []string
	calsets                []CalSet
	nextGUID               int
	written                map[CoefficientID][]complex128
	deleted                []string

	snpCalls int
	failSnp  int // номер вызова SnpData, который вернет ошибку (0 - никогда)
}

func newFakeBench(port1, port2 int) (*fakeAnalyzer, *fakeCalUnit) {
	c := newFakeCalUnit(4, benchFrequencies)
	a := &fakeAnalyzer{
		calunit:    c,
		wiring:     [2]int{port1, port2},
		freqs:      benchFrequencies,
		terms:      benchTerms,
		continuous: true,
		correction: true,
		written:    map[CoefficientID][]complex128{},
	}
	return a, c
}

func (a *fakeAnalyzer) SetContinuous(enable bool) error {
	a.calls = append(a.calls, fmt.Sprintf("continuous %v", enable))
	a.continuous = enable
	return nil
}

func (a *fakeAnalyzer) SetCorrectionState(enable bool) error {
	a.calls = append(a.calls, fmt.Sprintf("correction %v", enable))
	a.correction = enable
	return nil
}

func (a *fakeAnalyzer) SelectFirstTrace(channel int) error {
	a.calls = append(a.calls, fmt.Sprintf("trace %d", channel))
	return nil
}

func (a *fakeAnalyzer) Trigger() error {
	a.triggered = true
	return nil
}

func (a *fakeAnalyzer) Wait() error {
	if !a.triggered {
		return fmt.Errorf("ожидание без запуска")
	}
	return nil
}

func (a *fakeAnalyzer) SnpData(channel, ports int) (*Network, error) {
	a.snpCalls++
	if a.failSnp != 0 && a.snpCalls == a.failSnp {
		return nil, &scpi.TimeoutError{Command: "CALC1:DATA:SNP? 2", Err: util.ErrTimeout}
	}
	if !a.triggered {
		return nil, fmt.Errorf("данные запрошены без развертки")
	}
	a.triggered = false
	return embed(a.calunit.dut(a.wiring[0], a.wiring[1], a.freqs), a.terms), nil
}

func (a *fakeAnalyzer) CalSets() ([]CalSet, error) {
	return append([]CalSet(nil), a.calsets...), nil
}

func (a *fakeAnalyzer) CreateCalSet(name string) error {
	a.nextGUID++
	a.calsets = append(a.calsets, CalSet{Name: name, GUID: fmt.Sprintf("{guid-%d}", a.nextGUID)})
	a.calls = append(a.calls, "create "+name)
	return nil
}

func (a *fakeAnalyzer) SelectCalSet(name string) error {
	a.calls = append(a.calls, "select "+name)
	return nil
}

func (a *fakeAnalyzer) DeleteCalSet(guid string) error {
	for i, cs := range a.calsets {
		if cs.GUID == guid {
			a.calsets = append(a.calsets[:i], a.calsets[i+1:]...)
			a.deleted = append(a.deleted, guid)
			return nil
		}
	}
	return fmt.Errorf("нет набора %s", guid)
}

func (a *fakeAnalyzer) ActivateCalSet(name string, applyStimulus bool) error {
	a.calls = append(a.calls, fmt.Sprintf("activate %s %v", name, applyStimulus))
	return nil
}

func (a *fakeAnalyzer) WriteErrorTerm(id CoefficientID, values []complex128) error {
	a.written[id] = append([]complex128(nil), values...)
	return nil
}

func (a *fakeAnalyzer) countCalSets(name string) int {
	n := 0
	for _, cs := range a.calsets {
		if cs.Name == name {
			n++
		}
	}
	return n
}

func (a *fakeAnalyzer) called(prefix string) bool {
	for _, c := range a.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
