package models

// User identifies an operator of the CRM. Authentication flows live
// elsewhere; this record exists for lead assignment and display only.
type User struct {
	Model
	Fullname string `json:"fullname" binding:"required,min=2"`
	Email    string `json:"email" gorm:"unique;not null" binding:"required,email"`
	IsAdmin  bool   `json:"is_admin" gorm:"default:false"`
}
