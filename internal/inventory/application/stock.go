package application

import (
	"context"
	"sort"

	inventory "fuel-ledger/internal/inventory/domain"
)

// UnitStock aggregates the lots of one unit.
type UnitStock struct {
	UnitID          string `json:"unit_id"`
	UnitCode        string `json:"unit_code"`
	OpenLots        int    `json:"open_lots"`
	SoldLots        int    `json:"sold_lots"`
	LoadedLiters    int64  `json:"loaded_liters"`
	UsedLiters      int64  `json:"used_liters"`
	RemainingLiters int64  `json:"remaining_liters"`
}

// SummarizeStock groups lots by unit, ordered by unit code.
func SummarizeStock(lots []inventory.FuelLot) []UnitStock {
	byUnit := make(map[string]*UnitStock)
	for i := range lots {
		lot := &lots[i]
		row, ok := byUnit[lot.UnitID]
		if !ok {
			row = &UnitStock{UnitID: lot.UnitID, UnitCode: lot.UnitCode}
			byUnit[lot.UnitID] = row
		}
		if lot.IsOpen() {
			row.OpenLots++
		} else {
			row.SoldLots++
		}
		row.LoadedLiters += lot.LoadedLiters
		row.UsedLiters += lot.UsedLiters
		row.RemainingLiters += lot.RemainingLiters()
	}
	result := make([]UnitStock, 0, len(byUnit))
	for _, row := range byUnit {
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UnitCode == result[j].UnitCode {
			return result[i].UnitID < result[j].UnitID
		}
		return result[i].UnitCode < result[j].UnitCode
	})
	return result
}

// StockOnHand summarizes the INSTOCK lots of every unit.
func (s *LedgerService) StockOnHand(ctx context.Context) ([]UnitStock, error) {
	lots, err := s.lots.List(ctx, inventory.LotFilter{Status: inventory.StockStatusInStock})
	if err != nil {
		return nil, err
	}
	return SummarizeStock(lots), nil
}
