// Этот файл содержит контроллер анализатора цепей серии PNA (SCPI по TCP-сокету).
package vnacal

import (
	"fmt"
	"strings"

	"github.com/momentics/vnacal/pkg/scpi"
)

// supportedModels - модели, для которых проверены форматы передачи коэффициентов
// и идентификаторы членов ошибки.
var supportedModels = []string{
	"E8801A",
	"E8802A",
	"E8803A",
	"E8356A",
	"E8357A",
	"E8358A",
}

// DataFormat - формат передачи числовых данных (:FORM).
type DataFormat int

const (
	DataFormatASCII DataFormat = iota + 1
	DataFormatReal32
	DataFormatReal64
)

func (f DataFormat) String() string {
	switch f {
	case DataFormatASCII:
		return "ASC,0"
	case DataFormatReal32:
		return "REAL,32"
	case DataFormatReal64:
		return "REAL,64"
	default:
		return fmt.Sprintf("DataFormat(%d)", int(f))
	}
}

// Valid сообщает, является ли значение одним из определенных форматов.
func (f DataFormat) Valid() bool { return f >= DataFormatASCII && f <= DataFormatReal64 }

func (f DataFormat) elementType() scpi.ElementType {
	switch f {
	case DataFormatReal32:
		return scpi.Float32
	case DataFormatReal64:
		return scpi.Float64
	default:
		return 0
	}
}

// StoreFormat - формат S-параметров в snp-данных (:MMEM:STOR:TRAC:FORM:SNP).
type StoreFormat int

const (
	StoreLinearMag StoreFormat = iota + 1
	StoreLogMag
	StoreComplex
	StoreAuto
)

func (f StoreFormat) String() string {
	switch f {
	case StoreLinearMag:
		return "MA"
	case StoreLogMag:
		return "DB"
	case StoreComplex:
		return "RI"
	case StoreAuto:
		return "AUTO"
	default:
		return fmt.Sprintf("StoreFormat(%d)", int(f))
	}
}

// CalSet - именованный набор калибровки в памяти анализатора.
type CalSet struct {
	Name, GUID string
}

// PNA управляет анализатором. Формат передачи - состояние сеанса: он задается только
// через ConfigureTransfer и не запрашивается у прибора повторно.
type PNA struct {
	link        *scpi.Link
	byteOrder   scpi.ByteOrder
	dataFormat  DataFormat
	storeFormat StoreFormat
}

// NewPNA создает контроллер поверх открытого канала.
func NewPNA(link *scpi.Link) *PNA {
	return &PNA{link: link}
}

// Identify запрашивает *IDN? и проверяет модель по списку поддерживаемых.
func (p *PNA) Identify() (Identity, error) {
	resp, err := p.link.Query("*IDN?")
	if err != nil {
		return Identity{}, fmt.Errorf("pna: ошибка идентификации: %w", err)
	}
	id := parseIdentity(resp)
	for _, m := range supportedModels {
		if id.Model == m {
			return id, nil
		}
	}
	return id, &DeviceIdentityError{Kind: UnsupportedModel, Manufacturer: id.Manufacturer, Model: id.Model}
}

// ConfigureTransfer задает порядок байт и формат данных для остального сеанса.
func (p *PNA) ConfigureTransfer(order scpi.ByteOrder, format DataFormat) error {
	if !order.Valid() || !format.Valid() {
		return &UnhandledFormatError{Format: fmt.Sprintf("%s/%s", format, order)}
	}
	if err := p.link.Send(":FORM:BORD " + order.String()); err != nil {
		return err
	}
	if err := p.link.Send(":FORM " + format.String()); err != nil {
		return err
	}
	p.byteOrder = order
	p.dataFormat = format
	return nil
}

// SetSnpStoreFormat задает формат S-параметров в snp-данных.
func (p *PNA) SetSnpStoreFormat(f StoreFormat) error {
	if f < StoreLinearMag || f > StoreAuto {
		return &UnhandledFormatError{Format: f.String()}
	}
	if err := p.link.Send(":MMEM:STOR:TRAC:FORM:SNP " + f.String()); err != nil {
		return err
	}
	p.storeFormat = f
	return nil
}

// SetContinuous включает или выключает непрерывную развертку.
func (p *PNA) SetContinuous(enable bool) error {
	return p.link.Send(fmt.Sprintf(":INIT:CONT %d", boolToInt(enable)))
}

// Trigger запускает одиночную развертку.
func (p *PNA) Trigger() error {
	return p.link.Send(":INIT:IMM")
}

// Wait блокируется до завершения всех начатых операций (*OPC?).
func (p *PNA) Wait() error {
	resp, err := p.link.Query("*OPC?")
	if err != nil {
		return fmt.Errorf("pna: ошибка ожидания завершения операции: %w", err)
	}
	if strings.TrimLeft(strings.TrimSpace(resp), "+") != "1" {
		return fmt.Errorf("pna: неожиданный ответ на *OPC?: %q", resp)
	}
	return nil
}

// SelectFirstTrace выбирает первое измерение канала, к которому относятся запросы CALC:DATA.
func (p *PNA) SelectFirstTrace(channel int) error {
	resp, err := p.link.Query(fmt.Sprintf(":CALC%d:PAR:CAT?", channel))
	if err != nil {
		return fmt.Errorf("pna: ошибка запроса списка измерений: %w", err)
	}
	items := splitCatalog(resp)
	if len(items) == 0 || items[0] == "" {
		return fmt.Errorf("pna: в канале %d нет измерений", channel)
	}
	return p.link.Send(fmt.Sprintf(`:CALC%d:PAR:SEL "%s"`, channel, items[0]))
}

// SnpData получает S-параметры канала как сеть с ports портами.
func (p *PNA) SnpData(channel, ports int) (*Network, error) {
	if p.storeFormat != StoreComplex {
		return nil, &UnhandledFormatError{Format: "snp " + p.storeFormat.String()}
	}
	cmd := fmt.Sprintf("CALC%d:DATA:SNP? %d", channel, ports)
	var values []float64
	var err error
	switch p.dataFormat {
	case DataFormatASCII:
		values, err = p.link.QueryASCII(cmd)
	case DataFormatReal32, DataFormatReal64:
		values, err = p.link.QueryBinary(cmd, p.dataFormat.elementType(), p.byteOrder)
	default:
		return nil, &UnhandledFormatError{Format: fmt.Sprintf("%s/%s", p.dataFormat, p.byteOrder)}
	}
	if err != nil {
		return nil, fmt.Errorf("pna: ошибка получения snp-данных: %w", err)
	}
	return snpNetwork(values, ports)
}

// snpNetwork разбирает плоский массив: строка частот и 2*ports^2 строк компонент.
// Двухпортовые данные приходят в порядке S11 S21 S12 S22 и переставляются в построчный.
func snpNetwork(values []float64, ports int) (*Network, error) {
	rows := 1 + 2*ports*ports
	if ports <= 0 || len(values) == 0 || len(values)%rows != 0 {
		return nil, fmt.Errorf("pna: %d значений не делятся на %d строк snp-данных", len(values), rows)
	}
	points := len(values) / rows
	row := func(r int) []float64 { return values[r*points : (r+1)*points] }

	components := make([][]float64, rows-1)
	for r := range components {
		components[r] = row(r + 1)
	}
	if ports == 2 {
		// Поменять местами S21 и S12 (действительные и мнимые части).
		components[2], components[4] = components[4], components[2]
		components[3], components[5] = components[5], components[3]
	}

	n := NewNetwork("", row(0), ports)
	for k := 0; k < points; k++ {
		for m := 0; m < ports*ports; m++ {
			n.S[k][m] = complex(components[2*m][k], components[2*m+1][k])
		}
	}
	return n, nil
}

// SetCorrectionState включает или выключает применение активной калибровки.
func (p *PNA) SetCorrectionState(enable bool) error {
	return p.link.Send(fmt.Sprintf(":SENS:CORR:STAT %d", boolToInt(enable)))
}

// CalSets возвращает каталог наборов калибровки.
func (p *PNA) CalSets() ([]CalSet, error) {
	names, err := p.link.Query(":SENS:CORR:CSET:CAT? NAME")
	if err != nil {
		return nil, fmt.Errorf("pna: ошибка запроса каталога калибровок: %w", err)
	}
	guids, err := p.link.Query(":SENS:CORR:CSET:CAT? GUID")
	if err != nil {
		return nil, fmt.Errorf("pna: ошибка запроса каталога калибровок: %w", err)
	}
	return zipCatalog(splitCatalog(names), splitCatalog(guids))
}

func zipCatalog(names, guids []string) ([]CalSet, error) {
	if len(names) != len(guids) {
		return nil, &CatalogMismatchError{Names: len(names), GUIDs: len(guids)}
	}
	sets := make([]CalSet, len(names))
	for i := range names {
		sets[i] = CalSet{Name: names[i], GUID: guids[i]}
	}
	return sets, nil
}

// splitCatalog разбирает строку-список вида "a,b,c" (в кавычках или без).
func splitCatalog(resp string) []string {
	resp = strings.Trim(strings.TrimSpace(resp), `"`)
	if resp == "" {
		return nil
	}
	items := strings.Split(resp, ",")
	for i := range items {
		items[i] = strings.Trim(strings.TrimSpace(items[i]), `"`)
	}
	return items
}

// CreateCalSet создает пустой набор калибровки.
func (p *PNA) CreateCalSet(name string) error {
	return p.link.Send(fmt.Sprintf(`:SENS:CORR:CSET:CREATE "%s"`, name))
}

// SelectCalSet делает набор текущим для записи коэффициентов.
func (p *PNA) SelectCalSet(name string) error {
	return p.link.Send(fmt.Sprintf(`:SENS:CORR:CSET:NAME "%s"`, name))
}

// DeleteCalSet удаляет набор по GUID.
func (p *PNA) DeleteCalSet(guid string) error {
	return p.link.Send(fmt.Sprintf(`:SENS:CORR:CSET:DELETE "%s"`, guid))
}

// ActivateCalSet применяет набор к каналу; applyStimulus переносит и настройки стимула.
func (p *PNA) ActivateCalSet(name string, applyStimulus bool) error {
	return p.link.Send(fmt.Sprintf(`:SENS:CORR:CSET:ACT "%s",%d`, name, boolToInt(applyStimulus)))
}

// WriteErrorTerm записывает один член модели ошибок в текущий набор. Текстовый или
// двоичный вид выбирается по согласованному формату передачи.
func (p *PNA) WriteErrorTerm(id CoefficientID, values []complex128) error {
	prefix := fmt.Sprintf(":SENS:CORR:CSET:DATA %s,", id)
	switch p.dataFormat {
	case DataFormatASCII:
		return p.link.Send(prefix + EncodeTermASCII(values))
	case DataFormatReal32, DataFormatReal64:
		return p.link.WriteBinary(prefix, Interleave(values), p.dataFormat.elementType(), p.byteOrder)
	default:
		return &UnhandledFormatError{Format: fmt.Sprintf("%s/%s", p.dataFormat, p.byteOrder)}
	}
}

// Close закрывает канал.
func (p *PNA) Close() error { return p.link.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
