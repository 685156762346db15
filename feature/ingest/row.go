package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"card-inventory/feature/inventory"

	"github.com/shopspring/decimal"
)

// lotRow is a validated data row.
type lotRow struct {
	card      inventory.CardInput
	sku       string
	condition string
	language  string
	location  string
	cost      decimal.NullDecimal
	quantity  int
}

// parseRow validates one data row. The error text is the row's skip reason.
func parseRow(record []string, cols map[string]int) (*lotRow, error) {
	get := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := &lotRow{
		card: inventory.CardInput{
			Name:       get(FieldName),
			SetName:    get(FieldSet),
			CardNumber: get(FieldCardNumber),
			Variant:    get(FieldVariant),
			Language:   get(FieldLanguage),
		},
		sku:       get(FieldSKU),
		condition: get(FieldCondition),
		language:  get(FieldLanguage),
		location:  get(FieldLocation),
	}

	var missing []string
	for _, f := range requiredFields {
		if get(f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	qty, err := strconv.Atoi(get(FieldQuantity))
	if err != nil {
		return nil, fmt.Errorf("quantity %q is not a whole number", get(FieldQuantity))
	}
	if qty < 0 {
		return nil, fmt.Errorf("quantity %d is negative", qty)
	}
	row.quantity = qty

	if row.condition == "" {
		row.condition = string(inventory.ConditionNM)
	}
	if _, ok := inventory.ParseCondition(row.condition); !ok {
		return nil, fmt.Errorf("unknown condition %q", row.condition)
	}

	if raw := get(FieldCost); raw != "" {
		d, err := inventory.ParseMoney(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid cost %q", raw)
		}
		row.cost = decimal.NewNullDecimal(d)
	}
	return row, nil
}
