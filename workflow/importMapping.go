package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/shopspring/decimal"
)

// Import field names. A ColumnMapping maps these to the file's column names.
const (
	fieldDate               = "data"
	fieldRiderName          = "usuario_nome"
	fieldDriverName         = "motorista_nome"
	fieldRegion             = "municipio"
	fieldStatus             = "status"
	fieldRiderPhone         = "usuario_telefone"
	fieldFare               = "valor"
	fieldDistance           = "distancia"
	fieldDuration           = "tempo_corrida"
	fieldRating             = "avaliacao"
	fieldCancellationReason = "motivo_cancelamento"

	fieldName         = "nome"
	fieldPhone        = "telefone"
	fieldRegisteredAt = "data_cadastro"

	fieldMonth         = "mes"
	fieldTargetRides   = "meta_corridas"
	fieldTargetRevenue = "meta_receita"
	fieldTargetDrivers = "meta_motoristas"
)

// ColumnMapping maps an import field to a column of the uploaded file.
type ColumnMapping map[string]string

// ImportSchema lists the accepted column names per field.
type ImportSchema struct {
	Required map[string][]string `json:"required_fields"`
	Optional map[string][]string `json:"optional_fields"`
}

var regionAliases = []string{"municipio", "município", "cidade", "city", "região", "regiao"}

var importSchemas = map[models.ImportType]ImportSchema{
	models.ImportTypeRides: {
		Required: map[string][]string{
			fieldDate:       {"data", "date", "data corrida"},
			fieldRiderName:  {"usuario_nome", "usuario", "cliente", "nome_usuario", "nome usuário", "nome usuario"},
			fieldDriverName: {"motorista_nome", "motorista", "driver", "nome motorista"},
			fieldRegion:     regionAliases,
			fieldStatus:     {"status", "situacao", "situação"},
		},
		Optional: map[string][]string{
			fieldRiderPhone:         {"usuario_telefone", "telefone_usuario", "tel_usuario", "tel usuário", "tel usuario"},
			fieldFare:               {"valor", "preco", "preço", "price"},
			fieldDistance:           {"distancia", "distância", "distance"},
			fieldDuration:           {"tempo_corrida", "tempo", "duration", "duração", "duracao"},
			fieldRating:             {"avaliacao", "avaliação", "rating", "nota"},
			fieldCancellationReason: {"motivo_cancelamento", "motivo", "reason"},
		},
	},
	models.ImportTypeDrivers: {
		Required: map[string][]string{
			fieldName:   {"nome", "name", "motorista"},
			fieldRegion: regionAliases,
		},
		Optional: map[string][]string{
			fieldPhone:        {"telefone", "phone", "tel"},
			fieldStatus:       {"status", "situacao", "situação"},
			fieldRegisteredAt: {"data_cadastro", "cadastro", "registration_date", "data cadastro"},
		},
	},
	models.ImportTypeTargets: {
		Required: map[string][]string{
			fieldRegion:      regionAliases,
			fieldMonth:       {"mes", "mês", "month", "data"},
			fieldTargetRides: {"meta_corridas", "meta", "target_rides", "meta corridas"},
		},
		Optional: map[string][]string{
			fieldTargetRevenue: {"meta_receita", "receita", "target_revenue", "meta receita"},
			fieldTargetDrivers: {"meta_motoristas", "motoristas", "target_drivers", "meta motoristas"},
		},
	},
}

func SchemaFor(t models.ImportType) (ImportSchema, bool) {
	s, ok := importSchemas[t]
	return s, ok
}

// DetectColumnMapping matches columns to fields case-insensitively. The
// first matching column wins.
func DetectColumnMapping(columns []string, schema ImportSchema) ColumnMapping {
	detected := ColumnMapping{}
	match := func(fields map[string][]string) {
		for field, aliases := range fields {
			for _, col := range columns {
				if containsFold(aliases, col) {
					detected[field] = col
					break
				}
			}
		}
	}
	match(schema.Required)
	match(schema.Optional)
	return detected
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// missingRequired returns the required fields that mapping does not bind to
// a column of columns, sorted.
func missingRequired(schema ImportSchema, mapping ColumnMapping, columns []string) []string {
	var missing []string
	for field := range schema.Required {
		col, ok := mapping[field]
		if !ok || indexOf(columns, col) < 0 {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

// boundRow reads the cells of one row through a resolved mapping.
type boundRow struct {
	index map[string]int
	cells []string
}

func bindMapping(mapping ColumnMapping, columns []string) map[string]int {
	index := make(map[string]int, len(mapping))
	for field, col := range mapping {
		if i := indexOf(columns, col); i >= 0 {
			index[field] = i
		}
	}
	return index
}

func (r boundRow) get(field string) string {
	i, ok := r.index[field]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return r.cells[i]
}

func (r boundRow) has(field string) bool {
	return r.get(field) != ""
}

var errRequired = errors.New("obrigatório")

func requiredText(r boundRow, field string) (string, error) {
	v := strings.TrimSpace(r.get(field))
	if v == "" {
		return "", fmt.Errorf("%s: %w", field, errRequired)
	}
	return v, nil
}

// importStatus follows the spreadsheets: an empty or unknown status is a
// completed ride.
func importStatus(text string) models.RideStatus {
	if s, ok := models.ParseRideStatus(text); ok {
		return s
	}
	return models.RideStatusCompleted
}

func rideFromImport(r boundRow) (models.RideRecord, error) {
	var ride models.RideRecord

	rawDate, err := requiredText(r, fieldDate)
	if err != nil {
		return ride, err
	}
	at, ok := utils.ParseDateTime(rawDate)
	if !ok {
		return ride, fmt.Errorf("formato de data inválido: %q", rawDate)
	}
	ride.RideAt = models.NormalizeRideTime(at)
	ride.RiderName = strings.TrimSpace(r.get(fieldRiderName))
	ride.DriverName = strings.TrimSpace(r.get(fieldDriverName))
	ride.Region = strings.TrimSpace(r.get(fieldRegion))
	ride.Status = importStatus(r.get(fieldStatus))
	ride.RiderPhone = utils.PhoneOrRaw(r.get(fieldRiderPhone), utils.DefaultPhoneRegion)
	ride.CancellationReason = utils.NullableString(r.get(fieldCancellationReason))
	ride.Origin = models.OriginImport

	if amount, ok := utils.ParseAmount(r.get(fieldFare)); ok {
		ride.Fare = decimal.NewNullDecimal(amount)
	}
	if d, ok := utils.ParseOptionalFloat(r.get(fieldDistance)); ok {
		ride.DistanceKm = &d
	}
	if m, ok := utils.ParseOptionalInt(r.get(fieldDuration)); ok {
		ride.DurationMinutes = &m
	}
	if r.has(fieldRating) {
		n, ok := utils.ParseOptionalInt(r.get(fieldRating))
		if !ok {
			return ride, fmt.Errorf("avaliação inválida: %q", r.get(fieldRating))
		}
		ride.Rating = &n
	}
	return ride, nil
}

func driverFromImport(r boundRow) (models.DriverRecord, error) {
	var driver models.DriverRecord

	name, err := requiredText(r, fieldName)
	if err != nil {
		return driver, err
	}
	driver.Name = name
	driver.Region = strings.TrimSpace(r.get(fieldRegion))
	driver.Phone = utils.PhoneOrRaw(r.get(fieldPhone), utils.DefaultPhoneRegion)
	driver.Origin = models.OriginImport

	driver.Status = models.DriverStatusActive
	if r.has(fieldStatus) {
		status, ok := models.ParseDriverStatus(r.get(fieldStatus))
		if !ok {
			return driver, fmt.Errorf("status de motorista inválido: %q", r.get(fieldStatus))
		}
		driver.Status = status
	}
	if r.has(fieldRegisteredAt) {
		at, ok := utils.ParseDate(r.get(fieldRegisteredAt))
		if !ok {
			return driver, fmt.Errorf("data de cadastro inválida: %q", r.get(fieldRegisteredAt))
		}
		driver.RegisteredAt = &at
	}
	return driver, nil
}

var monthLayouts = []string{"2006-01", "01/2006", "1/2006"}

// parseTargetMonth accepts a full date or a bare month.
func parseTargetMonth(text string) (time.Time, bool) {
	if t, ok := utils.ParseDate(text); ok {
		return models.MonthStart(t), true
	}
	s := strings.TrimSpace(text)
	for _, layout := range monthLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return models.MonthStart(t), true
		}
	}
	return time.Time{}, false
}

func targetFromImport(r boundRow) (models.TargetRecord, error) {
	var target models.TargetRecord

	rawMonth, err := requiredText(r, fieldMonth)
	if err != nil {
		return target, err
	}
	month, ok := parseTargetMonth(rawMonth)
	if !ok {
		return target, fmt.Errorf("mês inválido: %q", rawMonth)
	}
	rawRides, err := requiredText(r, fieldTargetRides)
	if err != nil {
		return target, err
	}
	rides, ok := utils.ParseOptionalInt(rawRides)
	if !ok {
		return target, fmt.Errorf("meta de corridas inválida: %q", rawRides)
	}

	target.Region = strings.TrimSpace(r.get(fieldRegion))
	target.Month = month
	target.TargetRides = rides
	target.Origin = models.OriginImport
	if amount, ok := utils.ParseAmount(r.get(fieldTargetRevenue)); ok {
		target.TargetRevenue = decimal.NewNullDecimal(amount)
	}
	if n, ok := utils.ParseOptionalInt(r.get(fieldTargetDrivers)); ok {
		target.TargetDrivers = &n
	}
	return target, nil
}
