// Package loaders exposes the buyback authorization datasets as
// point-in-time loaders over a trading calendar.
package loaders

import (
	"sort"

	"pitloader/internal/source"
	"pitloader/pkg/contracts/domain"
)

// Raw column names shared by the buyback datasets
const (
	SidField          = "sid"
	TimestampField    = "timestamp"
	BuybackDateField  = "buyback_date"
	CashAmountField   = "cash_amount"
	ShareCountField   = "share_count"
	AnnouncementName  = "previous_buyback_announcement"
	DaysSinceName     = "days_since_prev"
	CashOutputName    = "previous_buyback_cash"
	ShareOutputName   = "previous_buyback_share_count"
	CashDatasetName   = "cash"
	SharesDatasetName = "share"
)

// Output maps a logical output column to a source field
type Output struct {
	Name   string
	Kind   domain.Kind
	Source string
}

// Dataset declares the raw schema of an event table and the columns a
// loader derives from it
type Dataset struct {
	Name    string
	Schema  source.Schema
	Outputs []Output

	// DaysSince names the business-days-since column; empty disables it
	DaysSince string
}

// Columns lists every logical column the dataset can produce
func (d Dataset) Columns() []string {
	cols := make([]string, 0, len(d.Outputs)+1)
	for _, o := range d.Outputs {
		cols = append(cols, o.Name)
	}
	if d.DaysSince != "" {
		cols = append(cols, d.DaysSince)
	}
	return cols
}

// CashBuybackAuthorizations is the dataset of cash-denominated buyback
// authorizations
func CashBuybackAuthorizations() Dataset {
	return buybackDataset(CashDatasetName, CashAmountField, CashOutputName)
}

// ShareBuybackAuthorizations is the dataset of share-count buyback
// authorizations
func ShareBuybackAuthorizations() Dataset {
	return buybackDataset(SharesDatasetName, ShareCountField, ShareOutputName)
}

func buybackDataset(name, valueField, valueOutput string) Dataset {
	return Dataset{
		Name: name,
		Schema: source.Schema{
			AssetColumn:     SidField,
			KnowledgeColumn: TimestampField,
			ReferenceColumn: BuybackDateField,
			Values:          []source.Field{{Name: valueField, Kind: domain.KindFloat}},
		},
		Outputs: []Output{
			{Name: valueOutput, Kind: domain.KindFloat, Source: valueField},
			{Name: AnnouncementName, Kind: domain.KindDate, Source: BuybackDateField},
		},
		DaysSince: DaysSinceName,
	}
}

// Datasets returns the known datasets by name
func Datasets() map[string]Dataset {
	return map[string]Dataset{
		CashDatasetName:   CashBuybackAuthorizations(),
		SharesDatasetName: ShareBuybackAuthorizations(),
	}
}

// DatasetNames returns the known dataset names in sorted order
func DatasetNames() []string {
	names := make([]string, 0, 2)
	for name := range Datasets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
