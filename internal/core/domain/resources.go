// Package domain holds the resource types the console reads from and
// writes to the backend API.
package domain

import "time"

// Customer is a subscriber account.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Status    string    `json:"status"` // active, suspended, closed
	PlanID    int64     `json:"plan_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Plan is an internet service plan. Plans are reference data: they
// change rarely, so their cache windows are long.
type Plan struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DownloadMbps int    `json:"download_mbps"`
	UploadMbps   int    `json:"upload_mbps"`
	PriceCents   int64  `json:"price_cents"`
	Active       bool   `json:"active"`
}

// Subscription ties a customer to a plan.
type Subscription struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	PlanID     int64     `json:"plan_id"`
	Status     string    `json:"status"` // active, paused, cancelled
	StartedAt  time.Time `json:"started_at"`
	RenewsAt   time.Time `json:"renews_at"`
}

// Invoice is a billing document issued to a customer.
type Invoice struct {
	ID          int64     `json:"id"`
	CustomerID  int64     `json:"customer_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"` // open, paid, overdue, void
	IssuedAt    time.Time `json:"issued_at"`
	DueAt       time.Time `json:"due_at"`
}

// Payment settles an invoice, fully or partially.
type Payment struct {
	ID          int64     `json:"id"`
	InvoiceID   int64     `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"` // card, transfer, cash
	PaidAt      time.Time `json:"paid_at"`
}

// RouterStatus is the reported health of a fleet router.
type RouterStatus string

const (
	RouterOnline   RouterStatus = "online"
	RouterDegraded RouterStatus = "degraded"
	RouterOffline  RouterStatus = "offline"
)

// Router is a device in the fleet. Router state is monitoring data:
// it changes constantly, so its cache windows are short.
type Router struct {
	ID            int64        `json:"id"`
	Hostname      string       `json:"hostname"`
	Model         string       `json:"model"`
	Site          string       `json:"site"`
	Address       string       `json:"address"` // management IP
	Status        RouterStatus `json:"status"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryPercent float64      `json:"memory_percent"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	LastSeenAt    time.Time    `json:"last_seen_at"`
}
