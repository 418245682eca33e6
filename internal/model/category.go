package model

// Category is a plain tag attached to products. Names are unique.
type Category struct {
	BaseModel
	Name string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name" validate:"required,max=100"`
}
