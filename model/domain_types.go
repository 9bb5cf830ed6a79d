package model

import "time"

type Customer struct {
	ID        int64     `db:"id" json:"id"`
	TenantID  int64     `db:"tenant_id" json:"tenantId"`
	Code      string    `db:"code" json:"code"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	BirthDate string    `db:"birth_date" json:"birthDate"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	Address   string    `db:"address" json:"address"`
	Notes     string    `db:"notes" json:"notes"`
	SearchKey string    `db:"search_key" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CustomerInput is the editable part of a customer.
type CustomerInput struct {
	Code      string `json:"code"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	BirthDate string `json:"birthDate"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Notes     string `json:"notes"`
}

type CustomerFilter struct {
	Query  string
	Limit  int
	Offset int
}

type Supplier struct {
	ID           int64  `db:"id" json:"id"`
	TenantID     int64  `db:"tenant_id" json:"tenantId"`
	Code         string `db:"code" json:"code"`
	Name         string `db:"name" json:"name"`
	ContactName  string `db:"contact_name" json:"contactName"`
	Phone        string `db:"phone" json:"phone"`
	Email        string `db:"email" json:"email"`
	Address      string `db:"address" json:"address"`
	LeadTimeDays int    `db:"lead_time_days" json:"leadTimeDays"`
	Notes        string `db:"notes" json:"notes"`
}

type Attachment struct {
	ID          int64     `db:"id" json:"id"`
	TenantID    int64     `db:"tenant_id" json:"tenantId"`
	CustomerID  int64     `db:"customer_id" json:"customerId"`
	BlobKey     string    `db:"blob_key" json:"-"`
	FileName    string    `db:"file_name" json:"fileName"`
	ContentType string    `db:"content_type" json:"contentType"`
	Size        int64     `db:"size" json:"size"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
