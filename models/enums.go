package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// Origin tags which data source last authoritatively wrote a record.
type Origin string

const (
	OriginSystem Origin = "system"
	OriginImport Origin = "import"
	OriginSheets Origin = "sheets"
)

func (o Origin) IsValid() bool {
	switch o {
	case OriginSystem, OriginImport, OriginSheets:
		return true
	}
	return false
}

func (o Origin) String() string { return string(o) }

// Origins lists every origin in priority order.
func Origins() []Origin {
	return []Origin{OriginSystem, OriginImport, OriginSheets}
}

func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system", "postgres":
		return OriginSystem, nil
	case "import":
		return OriginImport, nil
	case "sheets", "google_sheets":
		return OriginSheets, nil
	default:
		return "", fmt.Errorf("invalid origin %q", s)
	}
}

func (o *Origin) Scan(value interface{}) error {
	s, err := scanString(value)
	if err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	parsed, err := ParseOrigin(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (o Origin) Value() (driver.Value, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("invalid origin %q", string(o))
	}
	return string(o), nil
}

type RideStatus string

const (
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
	RideStatusLost      RideStatus = "lost"
)

func (s RideStatus) IsValid() bool {
	switch s {
	case RideStatusCompleted, RideStatusCancelled, RideStatusLost:
		return true
	}
	return false
}

func (s RideStatus) String() string { return string(s) }

// ParseRideStatus accepts the English values and the Portuguese labels used
// by the operations spreadsheets.
func ParseRideStatus(s string) (RideStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "concluida", "concluída", "concluido", "concluído":
		return RideStatusCompleted, true
	case "cancelled", "canceled", "cancelada", "cancelado":
		return RideStatusCancelled, true
	case "lost", "perdida", "perdido":
		return RideStatusLost, true
	default:
		return "", false
	}
}

func (s *RideStatus) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return fmt.Errorf("ride status: %w", err)
	}
	parsed, ok := ParseRideStatus(str)
	if !ok {
		return fmt.Errorf("invalid ride status %q", str)
	}
	*s = parsed
	return nil
}

func (s RideStatus) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid ride status %q", string(s))
	}
	return string(s), nil
}

type DriverStatus string

const (
	DriverStatusActive   DriverStatus = "active"
	DriverStatusInactive DriverStatus = "inactive"
	DriverStatusBlocked  DriverStatus = "blocked"
)

func (s DriverStatus) IsValid() bool {
	switch s {
	case DriverStatusActive, DriverStatusInactive, DriverStatusBlocked:
		return true
	}
	return false
}

func ParseDriverStatus(s string) (DriverStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "ativo", "ativa":
		return DriverStatusActive, true
	case "inactive", "inativo", "inativa":
		return DriverStatusInactive, true
	case "blocked", "bloqueado", "bloqueada":
		return DriverStatusBlocked, true
	default:
		return "", false
	}
}

// DocumentType classifies an expense document.
type DocumentType string

const (
	DocumentTypeInvoice        DocumentType = "invoice"
	DocumentTypePaymentReceipt DocumentType = "payment_receipt"
	DocumentTypeOther          DocumentType = "other"
)

// ParseDocumentType maps a free-text label to its kind. Anything that is
// neither an invoice nor a payment receipt is Other.
func ParseDocumentType(label string) DocumentType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "nota fiscal", "nf", "nfe", "nf-e", "invoice":
		return DocumentTypeInvoice
	case "comprovante de pagamento", "comprovante", "payment receipt", "payment_receipt", "receipt":
		return DocumentTypePaymentReceipt
	default:
		return DocumentTypeOther
	}
}

type ImportStatus string

const (
	ImportStatusProcessing          ImportStatus = "processing"
	ImportStatusCompleted           ImportStatus = "completed"
	ImportStatusCompletedWithErrors ImportStatus = "completed_with_errors"
	ImportStatusFailed              ImportStatus = "failed"
)

type ImportType string

const (
	ImportTypeRides   ImportType = "rides"
	ImportTypeDrivers ImportType = "drivers"
	ImportTypeTargets ImportType = "targets"
)

func ParseImportType(s string) (ImportType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rides", "corridas":
		return ImportTypeRides, true
	case "drivers", "motoristas":
		return ImportTypeDrivers, true
	case "targets", "metas":
		return ImportTypeTargets, true
	default:
		return "", false
	}
}

type SyncRunStatus string

const (
	SyncRunStatusRunning SyncRunStatus = "running"
	SyncRunStatusSuccess SyncRunStatus = "success"
	SyncRunStatusPartial SyncRunStatus = "partial"
	SyncRunStatusFailed  SyncRunStatus = "failed"
)

type SyncTrigger string

const (
	SyncTriggeredManual SyncTrigger = "manual"
	SyncTriggeredSystem SyncTrigger = "system"
	SyncTriggeredPubSub SyncTrigger = "pubsub"
	SyncTriggeredCLI    SyncTrigger = "cli"
)

func scanString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", errors.New("unexpected NULL")
	default:
		return "", fmt.Errorf("unsupported type %T", value)
	}
}
