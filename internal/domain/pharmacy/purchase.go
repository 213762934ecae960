package pharmacy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
)

// Purchase is an incoming supplier invoice. TotalAmount is entered by the
// client, it is not derived from the items.
type Purchase struct {
	entity.Base
	PurchaseDate  *entity.Date     `db:"purchase_date" json:"purchaseDate"`
	InvoiceNumber *string          `db:"invoice_number" json:"invoiceNumber"`
	TotalAmount   *decimal.Decimal `db:"total_amount" json:"totalAmount"`
	SupplierID    *id.ID           `db:"supplier_id" json:"supplierId" ref:"suppliers"`
}

type PurchaseItem struct {
	entity.Base
	Quantity   *int32           `db:"quantity" json:"quantity"`
	Price      *decimal.Decimal `db:"price" json:"price"`
	PurchaseID *id.ID           `db:"purchase_id" json:"purchaseId" ref:"purchases"`
	MedicineID *id.ID           `db:"medicine_id" json:"medicineId" ref:"medicines"`
}

type SupplierPayment struct {
	entity.Base
	PaymentDate   *time.Time       `db:"payment_date" json:"paymentDate"`
	PaymentMethod *string          `db:"payment_method" json:"paymentMethod"`
	PaymentStatus *string          `db:"payment_status" json:"paymentStatus"`
	AmountPaid    *decimal.Decimal `db:"amount_paid" json:"amountPaid"`
	SupplierID    *id.ID           `db:"supplier_id" json:"supplierId" ref:"suppliers"`
	PurchaseID    *id.ID           `db:"purchase_id" json:"purchaseId" ref:"purchases"`
}
