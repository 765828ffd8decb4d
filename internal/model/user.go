package model

import (
	"time"

	"github.com/google/uuid"
)

// User is the consumed slice of the account store: existence checks, the
// email address to deliver to, and a display name for notification copy.
// Account lifecycle is owned elsewhere.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName  string    `gorm:"type:varchar(255)" json:"full_name"`
	Role      string    `gorm:"type:varchar(32);default:'member'" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
