package exporter

import (
	"strconv"

	"pitloader/pkg/contracts/domain"
)

// formatFloat formats a float64 with the shortest exact representation
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatValue renders a cell; null cells are empty
func formatValue(v domain.Value) string {
	switch v.Kind {
	case domain.KindFloat:
		return formatFloat(v.Float)
	case domain.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case domain.KindDate:
		return v.Date.Format(domain.DateLayout)
	default:
		return ""
	}
}

func formatAsset(a domain.AssetID) string {
	return strconv.FormatInt(int64(a), 10)
}
