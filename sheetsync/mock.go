package sheetsync

import (
	"context"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/sirupsen/logrus"
)

// NewMockSource serves a fixed spreadsheet through the same conversion path
// as the real one. It is used when no spreadsheet is configured.
func NewMockSource(logger logrus.FieldLogger, now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	return &Source{
		name:           "mock",
		reader:         &mockReader{now: now},
		spreadsheetID:  "mock",
		targetsSheetID: "mock",
		phoneRegion:    utils.DefaultPhoneRegion,
		logger:         logger,
		now:            now,
	}
}

type mockReader struct {
	now func() time.Time
}

func (m *mockReader) Values(_ context.Context, _ string, rng string) ([][]interface{}, error) {
	day := func(ago int) string {
		return m.now().UTC().AddDate(0, 0, -ago).Format("2006-01-02")
	}

	switch rng {
	case RangeCompleted:
		return [][]interface{}{
			{"Data", "Nº ID", "Nome Usuário", "Tel Usuário", "Municipio", "Nome Motorista"},
			{day(3), "001", "João Silva", "11999999999", "São Paulo", "Carlos Santos"},
			{day(3), "002", "Maria Oliveira", "21988888888", "Rio de Janeiro", "Ana Costa"},
			{day(2), "003", "Pedro Lima", "11977777777", "São Paulo", "José Ferreira"},
			{day(2), "004", "Ana Santos", "31966666666", "Belo Horizonte", "Roberto Silva"},
			{day(1), "005", "Carlos Pereira", "11955555555", "São Paulo", "Marcos Oliveira"},
		}, nil
	case RangeCancelled:
		return [][]interface{}{
			{"Data - CC", "Nº ID - CC", "Nome Usuario - CC", "Tel. Usuário - CC", "Municipio - CC", "Nome Motorista - CC", "Razão - CC", "Motivo - CC"},
			{day(3), "006", "Lucia Fernandes", "11944444444", "São Paulo", "Paulo Santos", "Cliente", "Desistência"},
			{day(2), "007", "Roberto Costa", "21933333333", "Rio de Janeiro", "Sandra Lima", "Motorista", "Problema no veículo"},
		}, nil
	case RangeLost:
		return [][]interface{}{
			{"Data - CP", "Nº ID _CP", "Nome Usuario - CP", "Tel. Usuário - CP", "Municipio - CP", "Razão - CP", "Motivo - CP"},
			{day(3), "008", "Fernando Silva", "11922222222", "São Paulo", "Sistema", "Falha na conexão"},
			{day(2), "009", "Mariana Oliveira", "31911111111", "Belo Horizonte", "Disponibilidade", "Sem motoristas na região"},
		}, nil
	case RangeDrivers:
		return [][]interface{}{
			{"Nome", "Telefone", "Municipio", "Status", "Data Cadastro"},
			{"Carlos Santos", "11912345678", "São Paulo", "Ativo", "2024-03-01"},
			{"José Ferreira", "11923456789", "São Paulo", "Ativo", "2024-05-12"},
			{"Ana Costa", "21934567890", "Rio de Janeiro", "Ativo", "2024-02-20"},
			{"Roberto Silva", "31945678901", "Belo Horizonte", "Inativo", "2023-11-08"},
		}, nil
	case RangeTargets:
		return [][]interface{}{
			{"Cidade", "Media Corridas Mês", "Meta Mês 1", "Meta Mês 2", "Meta Mês 3", "Meta Mês 4", "Meta Mês 5", "Meta Mês 6"},
			{"São Paulo", 150, 200, 220, 240, 260, 280, 300},
			{"Rio de Janeiro", 100, 120, 130, 140, 150, 160, 170},
			{"Belo Horizonte", 80, 90, 95, 100, 105, 110, 115},
		}, nil
	default:
		return nil, nil
	}
}
