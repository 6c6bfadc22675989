package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Building groups properties that share a hot-water circulation loop
type Building struct {
	ID                        uuid.UUID        `json:"id"`
	Name                      string           `json:"name"`
	CirculationSummerAverage  *decimal.Decimal `json:"circulationSummerAverage,omitempty"`
	SummerAverageCalculatedAt *time.Time       `json:"summerAverageCalculatedAt,omitempty"`
	Properties                []Property       `json:"properties"`
}

// Property is an apartment or unit inside a building
type Property struct {
	ID                    uuid.UUID       `json:"id"`
	BuildingID            uuid.UUID       `json:"buildingId"`
	Name                  string          `json:"name,omitempty"`
	AreaSqm               decimal.Decimal `json:"areaSqm"`
	HistoricalConsumption decimal.Decimal `json:"historicalConsumption"`
}

// HasSummerAverage reports whether a positive summer baseline is stored
func (b *Building) HasSummerAverage() bool {
	return b.CirculationSummerAverage != nil && b.CirculationSummerAverage.IsPositive()
}

// TotalArea returns the sum of property areas
func (b *Building) TotalArea() decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.Properties {
		total = total.Add(p.AreaSqm)
	}
	return total
}

// PropertyIDs returns the property IDs in iteration order
func (b *Building) PropertyIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(b.Properties))
	for i, p := range b.Properties {
		ids[i] = p.ID
	}
	return ids
}

// BuildingRef returns a short reference to a building for log output. It is
// stable per building and does not reveal the ID.
func BuildingRef(id uuid.UUID) string {
	sum := sha256.Sum256([]byte(id.String()))
	return hex.EncodeToString(sum[:])[:8]
}
