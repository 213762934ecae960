package pharmacy

import "github.com/AksahyDwivedi/pharmacy/internal/core/entity"

// Supplier delivers purchases.
type Supplier struct {
	entity.Base
	Name          *string `db:"name" json:"name"`
	ContactPerson *string `db:"contact_person" json:"contactPerson"`
	Phone         *string `db:"phone" json:"phone"`
	Email         *string `db:"email" json:"email"`
	Address       *string `db:"address" json:"address"`
}
