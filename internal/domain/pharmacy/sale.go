package pharmacy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
)

// Sale is an outgoing customer invoice.
type Sale struct {
	entity.Base
	SaleDate      *time.Time       `db:"sale_date" json:"saleDate"`
	InvoiceNumber *string          `db:"invoice_number" json:"invoiceNumber"`
	TotalAmount   *decimal.Decimal `db:"total_amount" json:"totalAmount"`
	CustomerID    *id.ID           `db:"customer_id" json:"customerId" ref:"customers"`
}

type SaleItem struct {
	entity.Base
	Quantity   *int32           `db:"quantity" json:"quantity"`
	Price      *decimal.Decimal `db:"price" json:"price"`
	MedicineID *id.ID           `db:"medicine_id" json:"medicineId" ref:"medicines"`
	SaleID     *id.ID           `db:"sale_id" json:"saleId" ref:"sales"`
}

type Payment struct {
	entity.Base
	PaymentDate   *time.Time       `db:"payment_date" json:"paymentDate"`
	PaymentMethod *string          `db:"payment_method" json:"paymentMethod"`
	PaymentStatus *string          `db:"payment_status" json:"paymentStatus"`
	Amount        *decimal.Decimal `db:"amount" json:"amount"`
	SaleID        *id.ID           `db:"sale_id" json:"saleId" ref:"sales"`
}
