package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/gabrielkumagai/beezy-api/pkg/database"
)

// UserModel is the GORM model for the users table. The wider platform owns
// this table; the chat service only reads identity attributes from it.
type UserModel struct {
	ID          string               `gorm:"type:varchar(36);primaryKey"`
	Email       string               `gorm:"type:varchar(255);uniqueIndex;not null"`
	Username    string               `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName string               `gorm:"type:varchar(100)"`
	Roles       database.StringArray `gorm:"type:text"`
	CreatedAt   time.Time            `gorm:"autoCreateTime"`
	DeletedAt   gorm.DeletedAt       `gorm:"index"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToParticipant reduces a user row to the attributes the chat core needs.
func (m *UserModel) ToParticipant() *Participant {
	name := m.DisplayName
	if name == "" {
		name = m.Username
	}
	return &Participant{
		UserID:      m.ID,
		DisplayName: name,
	}
}
