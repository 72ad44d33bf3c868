package mapping

import (
	"sheetpipe/internal/core"
)

// Built-in schemas. Alias lists are the union of the header variants the
// legacy import scripts matched one by one; order matters and is preserved.

// TransactionFields defines the expected columns for transaction exports.
var TransactionFields = []FieldSpec{
	{Name: "transaction_id", Aliases: []string{"txn_id", "id", "reference", "transaction id"}, Kind: core.FieldText, Required: true},
	{Name: "occurred_on", Aliases: []string{"date", "invoice_date", "transaction_date", "txn_date"}, Kind: core.FieldDate, Required: true},
	{Name: "amount", Aliases: []string{"sales_amount", "total", "gross_amount", "invoice_amount"}, Kind: core.FieldDecimal, Required: true},
	{Name: "currency", Aliases: []string{"transaction_currency", "curr"}, Kind: core.FieldText, Default: "USD"},
	{Name: "customer_id", Aliases: []string{"client_id", "account_id"}, Kind: core.FieldText, AllowEmpty: true},
	{Name: "description", Aliases: []string{"memo", "details", "narrative"}, Kind: core.FieldText, AllowEmpty: true},
	{Name: "voided", Aliases: []string{"void", "cancelled", "is_void"}, Kind: core.FieldBool, Default: "false"},
}

// CustomerFields defines the expected columns for customer/contact exports.
var CustomerFields = []FieldSpec{
	{Name: "customer_id", Aliases: []string{"id", "client_id", "account_id"}, Kind: core.FieldText, Required: true},
	{Name: "name", Aliases: []string{"customer_name", "client_name", "full_name", "company"}, Kind: core.FieldText, Required: true},
	{Name: "email", Aliases: []string{"email_address", "e_mail", "mail"}, Kind: core.FieldText, AllowEmpty: true},
	{Name: "phone", Aliases: []string{"phone_number", "telephone", "mobile"}, Kind: core.FieldText, AllowEmpty: true},
	{Name: "city", Aliases: []string{"address_city", "town"}, Kind: core.FieldText, AllowEmpty: true},
	{Name: "country", Aliases: []string{"address_country", "country_code"}, Kind: core.FieldText, AllowEmpty: true},
	{Name: "signed_up_on", Aliases: []string{"created", "created_at", "signup_date", "registration_date"}, Kind: core.FieldDate, AllowEmpty: true},
}

// InventoryFields defines the expected columns for stock/inventory exports.
var InventoryFields = []FieldSpec{
	{Name: "sku", Aliases: []string{"item_code", "product_code", "id", "article"}, Kind: core.FieldText, Required: true},
	{Name: "name", Aliases: []string{"item_name", "product_name", "description", "title"}, Kind: core.FieldText, Required: true},
	{Name: "quantity", Aliases: []string{"qty", "stock", "on_hand", "count"}, Kind: core.FieldInteger, Required: true},
	{Name: "unit_price", Aliases: []string{"price", "cost", "unit_cost"}, Kind: core.FieldDecimal, AllowEmpty: true},
	{Name: "updated_on", Aliases: []string{"last_updated", "as_of", "stock_date"}, Kind: core.FieldDate, AllowEmpty: true},
}

const (
	DatasetTransactions core.Dataset = "transactions"
	DatasetCustomers    core.Dataset = "customers"
	DatasetInventory    core.Dataset = "inventory"
)

// Registry holds the schema for every known dataset.
type Registry struct {
	schemas map[core.Dataset]Schema
}

// NewRegistry returns a registry preloaded with the built-in schemas.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[core.Dataset]Schema)}
	r.Register(Schema{Dataset: DatasetTransactions, Fields: TransactionFields})
	r.Register(Schema{Dataset: DatasetCustomers, Fields: CustomerFields})
	r.Register(Schema{Dataset: DatasetInventory, Fields: InventoryFields})
	return r
}

// Register adds or replaces the schema for a dataset.
func (r *Registry) Register(s Schema) {
	r.schemas[s.Dataset] = s
}

// Schema looks up the schema for a dataset.
func (r *Registry) Schema(d core.Dataset) (Schema, error) {
	s, ok := r.schemas[d]
	if !ok {
		return Schema{}, ErrUnknownDataset
	}
	return s, nil
}

// Datasets lists every registered dataset in no particular order.
func (r *Registry) Datasets() []core.Dataset {
	out := make([]core.Dataset, 0, len(r.schemas))
	for d := range r.schemas {
		out = append(out, d)
	}
	return out
}
