package pharmacy

import (
	"github.com/shopspring/decimal"

	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
)

// Medicine is a catalogue item. Stock is a plain counter; nothing in the
// service adjusts it on sale or purchase.
type Medicine struct {
	entity.Base
	Name         *string          `db:"name" json:"name"`
	Manufacturer *string          `db:"manufacturer" json:"manufacturer"`
	Category     *string          `db:"category" json:"category"`
	Price        *decimal.Decimal `db:"price" json:"price"`
	Stock        *int32           `db:"stock" json:"stock"`
}

// MedicineBatch is a received lot of one medicine.
type MedicineBatch struct {
	entity.Base
	BatchNumber *string      `db:"batch_number" json:"batchNumber"`
	ExpiryDate  *entity.Date `db:"expiry_date" json:"expiryDate"`
	Quantity    *int32       `db:"quantity" json:"quantity"`
	PurchaseID  *id.ID       `db:"purchase_id" json:"purchaseId" ref:"purchases"`
	MedicineID  *id.ID       `db:"medicine_id" json:"medicineId" ref:"medicines"`
}
