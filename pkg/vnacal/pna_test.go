package vnacal

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/momentics/vnacal/pkg/scpi"
)

// nativeSnp строит snp-данные двухпортовой сети в порядке прибора: строка частот,
// затем S11, S21, S12, S22 (действительная и мнимая части отдельными строками).
func nativeSnp(n *Network) []float64 {
	var out []float64
	out = append(out, n.Frequencies...)
	for _, p := range [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 2}} {
		vals := n.Param(p[0], p[1])
		for _, v := range vals {
			out = append(out, real(v))
		}
		for _, v := range vals {
			out = append(out, imag(v))
		}
	}
	return out
}

func asciiLine(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'e', -1, 64)
	}
	return strings.Join(parts, ",") + "\n"
}

// exactThrough - перемычка со значениями, точно представимыми во float32.
func exactThrough() *Network {
	n := NewNetwork("thru", []float64{1e9, 2e9}, 2)
	for k := range n.S {
		x := float64(k)
		n.set(k, 1, 1, complex(0.125+x, -0.25))
		n.set(k, 2, 1, complex(0.5, 0.75+x))
		n.set(k, 1, 2, complex(-0.5, 0.0625))
		n.set(k, 2, 2, complex(0.375, -x))
	}
	return n
}

// newTestPNA видит все команды в respond, но в ответ отдает только ответы на запросы:
// команды без '?' в заголовке прибор не подтверждает.
func newTestPNA(t *testing.T, order scpi.ByteOrder, format DataFormat, respond func(string) string) (*PNA, *scriptedPort) {
	t.Helper()
	var queries func(string) string
	if respond != nil {
		queries = func(cmd string) string {
			resp := respond(cmd)
			header, _, _ := strings.Cut(cmd, " ")
			if !strings.HasSuffix(header, "?") {
				return ""
			}
			return resp
		}
	}
	link, port := newScriptedLink(t, "\n", queries)
	pna := NewPNA(link)
	if err := pna.ConfigureTransfer(order, format); err != nil {
		t.Fatalf("ConfigureTransfer failed: %v", err)
	}
	if err := pna.SetSnpStoreFormat(StoreComplex); err != nil {
		t.Fatalf("SetSnpStoreFormat failed: %v", err)
	}
	return pna, port
}

func checkSameNetwork(t *testing.T, got, want *Network) {
	t.Helper()
	if got.Ports != want.Ports || got.Points() != want.Points() {
		t.Fatalf("shape mismatch: %d ports %d points, expected %d ports %d points", got.Ports, got.Points(), want.Ports, want.Points())
	}
	for k := range want.S {
		if got.Frequencies[k] != want.Frequencies[k] {
			t.Errorf("point %d: frequency %v, expected %v", k, got.Frequencies[k], want.Frequencies[k])
		}
		for i := 1; i <= want.Ports; i++ {
			for j := 1; j <= want.Ports; j++ {
				if got.At(k, i, j) != want.At(k, i, j) {
					t.Errorf("point %d S%d%d: expected %v, got %v", k, i, j, want.At(k, i, j), got.At(k, i, j))
				}
			}
		}
	}
}

func TestPNA_Identify(t *testing.T) {
	link, _ := newScriptedLink(t, "\n", func(cmd string) string {
		return "Agilent Technologies,E8358A,US12345,A.07.50.67\n"
	})
	id, err := NewPNA(link).Identify()
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if id.Model != "E8358A" || id.Serial != "US12345" {
		t.Errorf("unexpected identity %+v", id)
	}

	link, _ = newScriptedLink(t, "\n", func(cmd string) string {
		return "Keysight Technologies,N5222B,MY1,A.13\n"
	})
	_, err = NewPNA(link).Identify()
	var idErr *DeviceIdentityError
	if !errors.As(err, &idErr) || idErr.Kind != UnsupportedModel || idErr.Model != "N5222B" {
		t.Errorf("Expected UnsupportedModel error, got %v", err)
	}
}

func TestPNA_ConfigureTransfer(t *testing.T) {
	_, port := newTestPNA(t, scpi.LittleEndian, DataFormatReal32, nil)
	want := []string{":FORM:BORD SWAP", ":FORM REAL,32", ":MMEM:STOR:TRAC:FORM:SNP RI"}
	got := port.Commands()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Expected %q, got %q", want, got)
	}

	link, _ := newScriptedLink(t, "\n", nil)
	var fmtErr *UnhandledFormatError
	if err := NewPNA(link).ConfigureTransfer(scpi.ByteOrder(0), DataFormatASCII); !errors.As(err, &fmtErr) {
		t.Errorf("Expected UnhandledFormatError, got %v", err)
	}
	if err := NewPNA(link).ConfigureTransfer(scpi.BigEndian, DataFormat(9)); !errors.As(err, &fmtErr) {
		t.Errorf("Expected UnhandledFormatError, got %v", err)
	}
}

func TestPNA_SnpData_ASCII(t *testing.T) {
	want := exactThrough()
	pna, port := newTestPNA(t, scpi.BigEndian, DataFormatASCII, func(cmd string) string {
		if cmd == "CALC1:DATA:SNP? 2" {
			return asciiLine(nativeSnp(want))
		}
		return ""
	})
	got, err := pna.SnpData(1, 2)
	if err != nil {
		t.Fatalf("SnpData failed: %v", err)
	}
	checkSameNetwork(t, got, want)
	cmds := port.Commands()
	if cmds[len(cmds)-1] != "CALC1:DATA:SNP? 2" {
		t.Errorf("unexpected last command %q", cmds[len(cmds)-1])
	}
}

func TestPNA_SnpData_Binary(t *testing.T) {
	want := exactThrough()
	for _, order := range []scpi.ByteOrder{scpi.BigEndian, scpi.LittleEndian} {
		for _, format := range []DataFormat{DataFormatReal32, DataFormatReal64} {
			block, err := scpi.EncodeBlock(nativeSnp(want), format.elementType(), order)
			if err != nil {
				t.Fatalf("EncodeBlock failed: %v", err)
			}
			pna, _ := newTestPNA(t, order, format, func(cmd string) string {
				if cmd == "CALC2:DATA:SNP? 2" {
					return string(block) + "\n"
				}
				return ""
			})
			got, err := pna.SnpData(2, 2)
			if err != nil {
				t.Fatalf("%s/%s: SnpData failed: %v", format, order, err)
			}
			checkSameNetwork(t, got, want)
		}
	}
}

func TestPNA_SnpData_OnePort(t *testing.T) {
	// Перестановка строк касается только двухпортовых данных.
	values := []float64{1e9, 2e9, 0.5, 0.25, -0.5, -0.25}
	n, err := snpNetwork(values, 1)
	if err != nil {
		t.Fatalf("snpNetwork failed: %v", err)
	}
	if n.At(0, 1, 1) != complex(0.5, -0.5) || n.At(1, 1, 1) != complex(0.25, -0.25) {
		t.Errorf("unexpected values %v", n.S)
	}
	if _, err := snpNetwork(values[:5], 1); err == nil {
		t.Error("Expected error for truncated data")
	}
}

func TestPNA_SnpData_RequiresComplexStore(t *testing.T) {
	link, _ := newScriptedLink(t, "\n", nil)
	pna := NewPNA(link)
	if err := pna.ConfigureTransfer(scpi.BigEndian, DataFormatASCII); err != nil {
		t.Fatalf("ConfigureTransfer failed: %v", err)
	}
	var fmtErr *UnhandledFormatError
	if _, err := pna.SnpData(1, 2); !errors.As(err, &fmtErr) {
		t.Errorf("Expected UnhandledFormatError, got %v", err)
	}

	link, _ = newScriptedLink(t, "\n", nil)
	pna = NewPNA(link)
	if err := pna.SetSnpStoreFormat(StoreComplex); err != nil {
		t.Fatalf("SetSnpStoreFormat failed: %v", err)
	}
	if _, err := pna.SnpData(1, 2); !errors.As(err, &fmtErr) {
		t.Errorf("Expected UnhandledFormatError without ConfigureTransfer, got %v", err)
	}
}

func TestPNA_SnpData_Timeout(t *testing.T) {
	pna, _ := newTestPNA(t, scpi.BigEndian, DataFormatASCII, nil)
	_, err := pna.SnpData(1, 2)
	if !scpi.IsTimeout(err) {
		t.Errorf("Expected timeout, got %v", err)
	}
}

func TestPNA_SelectFirstTrace(t *testing.T) {
	pna, port := newTestPNA(t, scpi.BigEndian, DataFormatASCII, func(cmd string) string {
		if cmd == ":CALC1:PAR:CAT?" {
			return "\"CH1_S11_1,S11,CH1_S21_2,S21\"\n"
		}
		return ""
	})
	if err := pna.SelectFirstTrace(1); err != nil {
		t.Fatalf("SelectFirstTrace failed: %v", err)
	}
	cmds := port.Commands()
	if got := cmds[len(cmds)-1]; got != `:CALC1:PAR:SEL "CH1_S11_1"` {
		t.Errorf("unexpected select command %q", got)
	}

	empty, _ := newTestPNA(t, scpi.BigEndian, DataFormatASCII, func(cmd string) string {
		if strings.Contains(cmd, "?") {
			return "\"\"\n"
		}
		return ""
	})
	if err := empty.SelectFirstTrace(1); err == nil {
		t.Error("Expected error for channel without traces")
	}
}

func TestPNA_Wait(t *testing.T) {
	for resp, ok := range map[string]bool{"+1\n": true, "1\n": true, "0\n": false} {
		pna, _ := newTestPNA(t, scpi.BigEndian, DataFormatASCII, func(cmd string) string { return resp })
		if err := pna.Wait(); (err == nil) != ok {
			t.Errorf("Wait with %q: unexpected result %v", resp, err)
		}
	}
}

func TestPNA_CalSets(t *testing.T) {
	pna, _ := newTestPNA(t, scpi.BigEndian, DataFormatASCII, func(cmd string) string {
		switch cmd {
		case ":SENS:CORR:CSET:CAT? NAME":
			return "\"LibreCAL,CalSet_1\"\n"
		case ":SENS:CORR:CSET:CAT? GUID":
			return "\"{AAAA-1},{BBBB-2}\"\n"
		}
		return ""
	})
	sets, err := pna.CalSets()
	if err != nil {
		t.Fatalf("CalSets failed: %v", err)
	}
	want := []CalSet{{"LibreCAL", "{AAAA-1}"}, {"CalSet_1", "{BBBB-2}"}}
	if len(sets) != len(want) || sets[0] != want[0] || sets[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, sets)
	}

	bad, _ := newTestPNA(t, scpi.BigEndian, DataFormatASCII, func(cmd string) string {
		switch cmd {
		case ":SENS:CORR:CSET:CAT? NAME":
			return "\"LibreCAL,CalSet_1\"\n"
		case ":SENS:CORR:CSET:CAT? GUID":
			return "\"{AAAA-1}\"\n"
		}
		return ""
	})
	var catErr *CatalogMismatchError
	if _, err := bad.CalSets(); !errors.As(err, &catErr) || catErr.Names != 2 || catErr.GUIDs != 1 {
		t.Errorf("Expected CatalogMismatchError, got %v", err)
	}

	empty, _ := newTestPNA(t, scpi.BigEndian, DataFormatASCII, func(cmd string) string {
		if strings.Contains(cmd, "?") {
			return "\"\"\n"
		}
		return ""
	})
	if sets, err := empty.CalSets(); err != nil || len(sets) != 0 {
		t.Errorf("Expected empty catalog, got %v, %v", sets, err)
	}
}

func TestPNA_WriteErrorTerm_ASCII(t *testing.T) {
	pna, port := newTestPNA(t, scpi.BigEndian, DataFormatASCII, nil)
	id, _ := ForwardTransmissionTracking.Coefficient()
	if err := pna.WriteErrorTerm(id, []complex128{complex(0.5, -0.25), 1}); err != nil {
		t.Fatalf("WriteErrorTerm failed: %v", err)
	}
	cmds := port.Commands()
	want := ":SENS:CORR:CSET:DATA ETRT,2,1,5.e-01,-2.5e-01,1.e+00,0.e+00"
	if got := cmds[len(cmds)-1]; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestPNA_WriteErrorTerm_Binary(t *testing.T) {
	pna, port := newTestPNA(t, scpi.LittleEndian, DataFormatReal32, nil)
	id, _ := ReverseLoadMatch.Coefficient()
	values := []complex128{complex(0.5, -0.25)}
	if err := pna.WriteErrorTerm(id, values); err != nil {
		t.Fatalf("WriteErrorTerm failed: %v", err)
	}
	block, _ := scpi.EncodeBlock(Interleave(values), scpi.Float32, scpi.LittleEndian)
	want := append([]byte(":SENS:CORR:CSET:DATA ELDM,1,2,"), block...)
	want = append(want, '\n')
	if !bytes.HasSuffix(port.Raw(), want) {
		t.Errorf("Expected raw suffix %q, got %q", want, port.Raw())
	}
}

func TestPNA_CalSetCommands(t *testing.T) {
	pna, port := newTestPNA(t, scpi.BigEndian, DataFormatASCII, nil)
	pna.CreateCalSet("LibreCAL")
	pna.SelectCalSet("LibreCAL")
	pna.DeleteCalSet("{AAAA-1}")
	pna.ActivateCalSet("LibreCAL", true)
	pna.SetContinuous(false)
	pna.SetCorrectionState(true)
	pna.Trigger()

	want := []string{
		`:SENS:CORR:CSET:CREATE "LibreCAL"`,
		`:SENS:CORR:CSET:NAME "LibreCAL"`,
		`:SENS:CORR:CSET:DELETE "{AAAA-1}"`,
		`:SENS:CORR:CSET:ACT "LibreCAL",1`,
		":INIT:CONT 0",
		":SENS:CORR:STAT 1",
		":INIT:IMM",
	}
	got := port.Commands()[3:]
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
