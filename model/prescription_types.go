package model

import "time"

type PrescriptionKind string

const (
	PrescriptionGlasses  PrescriptionKind = "glasses"
	PrescriptionContacts PrescriptionKind = "contacts"
)

// Eye holds one side of a refraction. Powers are in dioptres, axis in degrees.
type Eye struct {
	Sphere    float64  `json:"sphere"`
	Cylinder  float64  `json:"cylinder"`
	Axis      int      `json:"axis"`
	Add       float64  `json:"add"`
	Prism     float64  `json:"prism"`
	Base      string   `json:"base"`
	BaseCurve *float64 `json:"baseCurve,omitempty"`
	Diameter  *float64 `json:"diameter,omitempty"`
}

type Prescription struct {
	ID                int64            `db:"id" json:"id"`
	TenantID          int64            `db:"tenant_id" json:"tenantId"`
	CustomerID        int64            `db:"customer_id" json:"customerId"`
	Kind              PrescriptionKind `db:"kind" json:"kind"`
	ExamDate          string           `db:"exam_date" json:"examDate"`
	ExpiresOn         string           `db:"expires_on" json:"expiresOn"`
	Prescriber        string           `db:"prescriber" json:"prescriber"`
	RightEye          Eye              `json:"rightEye"`
	LeftEye           Eye              `json:"leftEye"`
	PupillaryDistance float64          `db:"pupillary_distance" json:"pupillaryDistance"`
	Notes             string           `db:"notes" json:"notes"`
	CreatedAt         time.Time        `db:"created_at" json:"createdAt"`

	CustomerName string `json:"customerName,omitempty"`
}

type PrescriptionInput struct {
	CustomerID        int64            `json:"customerId"`
	Kind              PrescriptionKind `json:"kind"`
	ExamDate          string           `json:"examDate"`
	ExpiresOn         string           `json:"expiresOn"`
	Prescriber        string           `json:"prescriber"`
	RightEye          Eye              `json:"rightEye"`
	LeftEye           Eye              `json:"leftEye"`
	PupillaryDistance float64          `json:"pupillaryDistance"`
	Notes             string           `json:"notes"`
}

// CustomerHistory is the clinical timeline of one customer.
type CustomerHistory struct {
	Customer      Customer       `json:"customer"`
	Appointments  []Appointment  `json:"appointments"`
	Prescriptions []Prescription `json:"prescriptions"`
}

type Dashboard struct {
	Date                  string         `json:"date"`
	TodayAppointments     []Appointment  `json:"todayAppointments"`
	UpcomingAppointments  int            `json:"upcomingAppointments"`
	NewCustomers          int            `json:"newCustomers"`
	LowStockCount         int            `json:"lowStockCount"`
	LowStock              []LowStockItem `json:"lowStock"`
	OpenOrders            int            `json:"openOrders"`
	OpenOrdersValue       float64        `json:"openOrdersValue"`
	ExpiringPrescriptions int            `json:"expiringPrescriptions"`
	StockValue            float64        `json:"stockValue"`
}
