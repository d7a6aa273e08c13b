// Package exporter writes loader output as CSV.
//
// CSVWriter handles file creation, optional UTF-8 BOM for Excel and
// streaming. MatrixExporter renders an OutputMatrix either in long form
// (one row per day and asset) or wide form (one file per column).
//
// Example usage:
//
//	exp := exporter.NewMatrixExporter("out", logger)
//	err := exp.ExportLong("buyback_cash.csv", matrix, nil)
package exporter
