package sheetsync

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type row struct {
	line  int // 1-based spreadsheet line
	cells map[string]string
}

type table struct {
	headers []string
	rows    []row
}

// newTable keys every data row by its normalized header. Short rows are
// padded with empty cells.
func newTable(values [][]interface{}) *table {
	t := &table{}
	if len(values) == 0 {
		return t
	}
	for _, h := range values[0] {
		t.headers = append(t.headers, NormalizeHeader(fmt.Sprint(h)))
	}
	for i, raw := range values[1:] {
		cells := make(map[string]string, len(t.headers))
		empty := true
		for j, h := range t.headers {
			v := ""
			if j < len(raw) && raw[j] != nil {
				v = strings.TrimSpace(fmt.Sprint(raw[j]))
			}
			if v != "" {
				empty = false
			}
			if _, dup := cells[h]; !dup || v != "" {
				cells[h] = v
			}
		}
		if empty {
			continue
		}
		t.rows = append(t.rows, row{line: i + 2, cells: cells})
	}
	return t
}

// get returns the first non-empty cell among the aliases.
func (r row) get(aliases ...string) string {
	for _, a := range aliases {
		if v := r.cells[a]; v != "" {
			return v
		}
	}
	return ""
}

var (
	stripMarks    = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	suffixPattern = regexp.MustCompile(`\s*[-_]\s*c[cp]$`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// NormalizeHeader folds a header to lower-case ASCII without the tab
// suffixes, so "Tel. Usuário - CC" and "tel usuario" compare equal.
func NormalizeHeader(h string) string {
	s, _, err := transform.String(stripMarks, h)
	if err != nil {
		s = h
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(".", " ", "º", "", "°", "", "nº", "").Replace(s)
	s = suffixPattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var (
	colDate     = []string{"data", "data corrida", "data hora"}
	colRider    = []string{"nome usuario", "usuario", "passageiro"}
	colPhone    = []string{"tel usuario", "telefone usuario", "telefone"}
	colRegion   = []string{"municipio", "cidade", "regiao"}
	colDriver   = []string{"nome motorista", "motorista"}
	colFare     = []string{"valor", "valor corrida", "preco"}
	colDistance = []string{"distancia", "distancia km"}
	colDuration = []string{"tempo corrida", "duracao", "tempo"}
	colRating   = []string{"avaliacao", "nota"}
	colParty    = []string{"razao"}
	colReason   = []string{"motivo", "motivo cancelamento"}

	colDriverName   = []string{"nome", "nome motorista", "motorista"}
	colDriverStatus = []string{"status", "situacao"}
	colRegistered   = []string{"data cadastro", "cadastro"}

	colCity          = []string{"cidade", "municipio", "regiao"}
	colTargetRevenue = []string{"meta receita"}
	colTargetDrivers = []string{"meta motoristas"}
)

var errMissingRider = errors.New("rider name is empty")

func rideFromRow(r row, status models.RideStatus, phoneRegion string) (models.RideRecord, error) {
	at, ok := utils.ParseDateTime(r.get(colDate...))
	if !ok {
		return models.RideRecord{}, fmt.Errorf("line %d: invalid date %q", r.line, r.get(colDate...))
	}
	ride := models.RideRecord{
		RideAt:     models.NormalizeRideTime(at),
		RiderName:  r.get(colRider...),
		RiderPhone: utils.PhoneOrRaw(r.get(colPhone...), phoneRegion),
		DriverName: r.get(colDriver...),
		Region:     r.get(colRegion...),
		Status:     status,
	}
	if ride.RiderName == "" {
		return models.RideRecord{}, fmt.Errorf("line %d: %w", r.line, errMissingRider)
	}
	if ride.Region == "" {
		return models.RideRecord{}, fmt.Errorf("line %d: region is empty", r.line)
	}
	if v, ok := utils.ParseAmount(r.get(colFare...)); ok {
		ride.Fare = decimal.NewNullDecimal(v)
	}
	if v, ok := utils.ParseOptionalFloat(r.get(colDistance...)); ok {
		ride.DistanceKm = &v
	}
	if v, ok := utils.ParseOptionalInt(r.get(colDuration...)); ok {
		ride.DurationMinutes = &v
	}
	if v, ok := utils.ParseRating(r.get(colRating...)); ok {
		ride.Rating = &v
	}
	ride.CancellationReason = cancellationReason(r.get(colParty...), r.get(colReason...))
	return ride, nil
}

// cancellationReason joins "Razão" (who) and "Motivo" (why) as "Cliente: Desistência".
func cancellationReason(party, reason string) *string {
	switch {
	case party != "" && reason != "":
		return utils.NullableString(party + ": " + reason)
	case reason != "":
		return utils.NullableString(reason)
	default:
		return utils.NullableString(party)
	}
}

func driverFromRow(r row, phoneRegion string) (models.DriverRecord, error) {
	driver := models.DriverRecord{
		Name:   r.get(colDriverName...),
		Phone:  utils.PhoneOrRaw(r.get(colPhone...), phoneRegion),
		Region: r.get(colRegion...),
		Status: models.DriverStatusActive,
	}
	if driver.Name == "" || driver.Region == "" {
		return models.DriverRecord{}, fmt.Errorf("line %d: driver name and region are required", r.line)
	}
	if raw := r.get(colDriverStatus...); raw != "" {
		status, ok := models.ParseDriverStatus(raw)
		if !ok {
			return models.DriverRecord{}, fmt.Errorf("line %d: unknown driver status %q", r.line, raw)
		}
		driver.Status = status
	}
	if at, ok := utils.ParseDateTime(r.get(colRegistered...)); ok {
		driver.RegisteredAt = &at
	}
	return driver, nil
}

var monthColumn = regexp.MustCompile(`^meta mes (\d{1,2})$`)

func targetsFromRow(r row, year int) ([]models.TargetRecord, error) {
	city := r.get(colCity...)
	if city == "" {
		return nil, fmt.Errorf("line %d: city is empty", r.line)
	}

	var revenue decimal.NullDecimal
	if v, ok := utils.ParseAmount(r.get(colTargetRevenue...)); ok {
		revenue = decimal.NewNullDecimal(v)
	}
	var drivers *int
	if v, ok := utils.ParseOptionalInt(r.get(colTargetDrivers...)); ok {
		drivers = &v
	}

	var out []models.TargetRecord
	for header, value := range r.cells {
		m := monthColumn.FindStringSubmatch(header)
		if m == nil || value == "" {
			continue
		}
		month, _ := strconv.Atoi(m[1])
		if month < 1 || month > 12 {
			continue
		}
		rides, ok := utils.ParseOptionalInt(value)
		if !ok {
			return nil, fmt.Errorf("line %d: invalid target %q for month %d", r.line, value, month)
		}
		out = append(out, models.TargetRecord{
			Region:        city,
			Month:         time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
			TargetRides:   rides,
			TargetRevenue: revenue,
			TargetDrivers: drivers,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}
