package workflow

import (
	"testing"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/stretchr/testify/assert"
)

func TestPriorityResolver_Rank(t *testing.T) {
	p := NewPriorityResolver()

	assert.Equal(t, 1, p.Rank(models.OriginSystem))
	assert.Equal(t, 2, p.Rank(models.OriginImport))
	assert.Equal(t, 3, p.Rank(models.OriginSheets))
	assert.Equal(t, unknownRank, p.Rank(models.Origin("legacy")))
}

func TestPriorityResolver_MayOverwrite(t *testing.T) {
	p := NewPriorityResolver()

	tests := []struct {
		name     string
		existing models.Origin
		incoming models.Origin
		want     bool
	}{
		{"system is protected from sheets", models.OriginSystem, models.OriginSheets, false},
		{"system is protected from import", models.OriginSystem, models.OriginImport, false},
		{"system is protected from system", models.OriginSystem, models.OriginSystem, false},
		{"import is protected from sheets", models.OriginImport, models.OriginSheets, false},
		{"import is protected from import", models.OriginImport, models.OriginImport, false},
		{"sheets updates sheets", models.OriginSheets, models.OriginSheets, true},
		{"import claims sheets", models.OriginSheets, models.OriginImport, true},
		{"system claims sheets", models.OriginSheets, models.OriginSystem, true},
		{"unknown existing is open", models.Origin(""), models.OriginSheets, true},
		{"unknown incoming is refused", models.Origin(""), models.Origin("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.MayOverwrite(tt.existing, tt.incoming))
		})
	}
}
