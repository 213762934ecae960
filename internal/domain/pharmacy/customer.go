package pharmacy

import "github.com/AksahyDwivedi/pharmacy/internal/core/entity"

// Customer buys medicines and holds prescriptions.
type Customer struct {
	entity.Base
	Name    *string `db:"name" json:"name"`
	Phone   *string `db:"phone" json:"phone"`
	Email   *string `db:"email" json:"email"`
	Address *string `db:"address" json:"address"`
}
