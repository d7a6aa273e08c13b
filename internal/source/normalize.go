package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"pitloader/internal/calendar"
	loaderrors "pitloader/internal/errors"
	"pitloader/pkg/contracts/domain"
)

// normalizer turns raw table rows into EventRecords for one request
type normalizer struct {
	req    Request
	wanted map[domain.AssetID]bool
	batch  *Batch
	seq    int
}

func newNormalizer(req Request) *normalizer {
	wanted := make(map[domain.AssetID]bool, len(req.Assets))
	for _, a := range req.Assets {
		wanted[a] = true
	}
	return &normalizer{
		req:    req,
		wanted: wanted,
		batch:  newBatch(req.Assets),
	}
}

// add normalizes every row of t. When fixed is non-nil the table belongs to
// that asset and needs no asset column.
func (n *normalizer) add(t *Table, fixed *domain.AssetID) error {
	if fixed != nil && !n.wanted[*fixed] {
		return nil
	}

	schema := n.req.Schema
	pos := t.positions()

	lookup := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return -1, loaderrors.NewSchemaError(name, "required column is missing")
		}
		return i, nil
	}

	assetIdx := -1
	if fixed == nil {
		i, err := lookup(schema.AssetColumn)
		if err != nil {
			return err
		}
		assetIdx = i
	}
	knowledgeIdx, err := lookup(schema.KnowledgeColumn)
	if err != nil {
		return err
	}
	referenceIdx, err := lookup(schema.ReferenceColumn)
	if err != nil {
		return err
	}
	valueIdx := make([]int, len(schema.Values))
	for k, f := range schema.Values {
		if valueIdx[k], err = lookup(f.Name); err != nil {
			return err
		}
	}

	until := domain.TruncateDay(n.req.Until)

	for r, row := range t.Rows {
		cell := func(i int) any {
			if i < len(row) {
				return row[i]
			}
			return nil
		}

		var asset domain.AssetID
		if fixed != nil {
			asset = *fixed
		} else {
			a, err := toAsset(cell(assetIdx))
			if err != nil {
				return rowError(schema.AssetColumn, r, err)
			}
			if !n.wanted[a] {
				continue
			}
			asset = a
		}

		knowledge, err := toDate(cell(knowledgeIdx))
		if err != nil {
			return rowError(schema.KnowledgeColumn, r, err)
		}
		if knowledge.IsZero() {
			return rowError(schema.KnowledgeColumn, r, fmt.Errorf("knowledge date is null"))
		}
		if !until.IsZero() && knowledge.After(until) {
			continue
		}

		reference, err := toDate(cell(referenceIdx))
		if err != nil {
			return rowError(schema.ReferenceColumn, r, err)
		}

		values := make(map[string]domain.Value, len(schema.Values))
		for k, f := range schema.Values {
			v, err := convert(cell(valueIdx[k]), f.Kind)
			if err != nil {
				return rowError(f.Name, r, err)
			}
			values[f.Name] = v
		}

		record := domain.EventRecord{
			Asset:         asset,
			KnowledgeDate: knowledge,
			ReferenceDate: reference,
			Values:        values,
			Seq:           n.seq,
		}
		n.seq++

		if record.IsDegenerate() {
			n.batch.Dropped++
			continue
		}
		n.batch.Events[asset] = append(n.batch.Events[asset], record)
	}

	return nil
}

func rowError(column string, row int, cause error) error {
	return loaderrors.NewTypeError(column, "unexpected value", cause).WithContext("row", row)
}

func convert(v any, kind domain.Kind) (domain.Value, error) {
	switch kind {
	case domain.KindFloat:
		f, ok, err := toFloat(v)
		if err != nil || !ok {
			return domain.Null(), err
		}
		return domain.FloatValue(f), nil
	case domain.KindDate:
		d, err := toDate(v)
		if err != nil {
			return domain.Null(), err
		}
		return domain.DateValue(d), nil
	default:
		return domain.Null(), fmt.Errorf("unsupported field kind %s", kind)
	}
}

// toFloat reports ok=false for null values
func toFloat(v any) (float64, bool, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case []byte:
		return toFloat(string(x))
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if s == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("expected number, found %q", x)
		}
		f = parsed
	default:
		return 0, false, fmt.Errorf("expected number, found %T", v)
	}
	if math.IsNaN(f) {
		return 0, false, nil
	}
	return f, true, nil
}

// toDate returns the zero time for null values
func toDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return domain.TruncateDay(x), nil
	case *time.Time:
		if x == nil {
			return time.Time{}, nil
		}
		return domain.TruncateDay(*x), nil
	case []byte:
		return toDate(string(x))
	case string:
		if strings.TrimSpace(x) == "" {
			return time.Time{}, nil
		}
		d, err := calendar.ParseDate(x)
		if err != nil {
			return time.Time{}, fmt.Errorf("expected date, found %q", x)
		}
		return domain.TruncateDay(d), nil
	default:
		return time.Time{}, fmt.Errorf("expected date, found %T", v)
	}
}

func toAsset(v any) (domain.AssetID, error) {
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("asset identifier is null")
	case domain.AssetID:
		return x, nil
	case int:
		return domain.AssetID(x), nil
	case int32:
		return domain.AssetID(x), nil
	case int64:
		return domain.AssetID(x), nil
	case uint32:
		return domain.AssetID(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("asset identifier %v is not an integer", x)
		}
		return domain.AssetID(x), nil
	case []byte:
		return toAsset(string(x))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("asset identifier %q is not an integer", x)
		}
		return domain.AssetID(i), nil
	default:
		return 0, fmt.Errorf("asset identifier has unsupported type %T", v)
	}
}
