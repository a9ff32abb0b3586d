package core

// Field names of records in the external store. They match the layout the
// collections have always used, so existing data keeps working.
const (
	FieldName           = "name"
	FieldMoneyInvested  = "moneyInvested"
	FieldInvestmentDate = "investmentDate"

	FieldTypeOfEntry      = "typeOfEntry"
	FieldTypeOfExpense    = "typeOfExpense"
	FieldTypeOfSale       = "typeOfSale"
	FieldDescription      = "description"
	FieldDate             = "date"
	FieldPerUnitCost      = "perUnitCost"
	FieldPerUnitSalePrice = "perUnitSalePrice"
	FieldQuantity         = "quantity"
	FieldTotalCost        = "totalCost"
	FieldTotalSalePrice   = "totalSalePrice"
	FieldTimestamp        = "timestamp"
)

// Values of FieldTypeOfEntry.
const (
	EntryExpense = "expense"
	EntrySale    = "sale"
)
