package pharmacy

import (
	"github.com/AksahyDwivedi/pharmacy/internal/core/entity"
	"github.com/AksahyDwivedi/pharmacy/internal/core/id"
)

type Prescription struct {
	entity.Base
	DoctorName       *string      `db:"doctor_name" json:"doctorName"`
	PrescriptionDate *entity.Date `db:"prescription_date" json:"prescriptionDate"`
	Notes            *string      `db:"notes" json:"notes"`
	CustomerID       *id.ID       `db:"customer_id" json:"customerId" ref:"customers"`
}
