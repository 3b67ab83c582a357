package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RequestStatus represents the lifecycle state of a visitor request
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Block represents a building block/tower/wing within a residency.
// Names are free text; legacy data is inconsistent about the
// "BLOCK"/"TOWER"/"WING" prefix.
type Block struct {
	ID          string    `json:"id" gorm:"type:varchar(255);primary_key"`
	ResidencyID string    `json:"residencyId" gorm:"type:varchar(255);not null;index"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Flat represents a residential unit within a residency
type Flat struct {
	ID          string    `json:"id" gorm:"type:varchar(255);primary_key"`
	ResidencyID string    `json:"residencyId" gorm:"type:varchar(255);not null;index"`
	Number      string    `json:"number" gorm:"type:varchar(50);not null"`
	BlockID     string    `json:"blockId" gorm:"type:varchar(255);index"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Resident represents a resident of a residency. A resident may be linked
// to a unit canonically via FlatID, or via the legacy (Block, Flat) pair of
// free-text names. FCMToken holds the single active device token; a new
// registration overwrites the previous one (last-write-wins, no history).
type Resident struct {
	ID          string `json:"id" gorm:"type:varchar(255);primary_key"`
	ResidencyID string `json:"residencyId" gorm:"type:varchar(255);not null;index"`
	Username    string `json:"username" gorm:"type:varchar(255);index"`
	Name        string `json:"name" gorm:"type:varchar(255)"`
	Phone       string `json:"phone" gorm:"type:varchar(50)"`

	// Canonical unit link
	FlatID string `json:"flatId" gorm:"type:varchar(255);index"`

	// Legacy unit link (denormalized names)
	Flat  string `json:"flat" gorm:"type:varchar(50);index"`
	Block string `json:"block" gorm:"type:varchar(255)"`

	FCMToken string `json:"fcmToken" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VisitorRequest represents one visitor arrival at the gate
type VisitorRequest struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ResidencyID   string        `json:"residencyId" gorm:"type:varchar(255);not null;index"`
	VisitorName   string        `json:"visitorName" gorm:"type:varchar(255);not null"`
	VisitorPhone  string        `json:"visitorPhone" gorm:"type:varchar(50)"`
	FlatID        string        `json:"flatId" gorm:"type:varchar(255);not null"`
	Purpose       string        `json:"purpose" gorm:"type:varchar(500)"`
	VehicleNumber string        `json:"vehicleNumber" gorm:"type:varchar(50)"`
	Status        RequestStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`

	// ApprovalToken authorizes the decision action delivered with the push
	ApprovalToken string `json:"-" gorm:"type:varchar(255)"`

	// NotificationSent flips false -> true exactly once, inside the
	// dispatch transaction, and never reverts.
	NotificationSent bool `json:"notificationSent" gorm:"not null;default:false"`

	DecidedBy string     `json:"decidedBy" gorm:"type:varchar(255)"`
	DecidedAt *time.Time `json:"decidedAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeliveryLog records one outbound push delivery attempt
type DeliveryLog struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ResidencyID string         `json:"residencyId" gorm:"type:varchar(255);not null;index"`
	RequestID   *uuid.UUID     `json:"requestId" gorm:"type:uuid;index"`
	Kind        string         `json:"kind" gorm:"type:varchar(50);not null"` // broadcast, action_request
	Tag         string         `json:"tag" gorm:"type:varchar(255);index"`
	Title       string         `json:"title" gorm:"type:varchar(500)"`
	Body        string         `json:"body" gorm:"type:text"`
	TokenCount  int            `json:"tokenCount" gorm:"default:0"`
	SentCount   int            `json:"sentCount" gorm:"default:0"`
	FailedCount int            `json:"failedCount" gorm:"default:0"`
	Data        datatypes.JSON `json:"data" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// TableName specifies table names
func (Block) TableName() string {
	return "blocks"
}

func (Flat) TableName() string {
	return "flats"
}

func (Resident) TableName() string {
	return "residents"
}

func (VisitorRequest) TableName() string {
	return "visitor_requests"
}

func (DeliveryLog) TableName() string {
	return "delivery_logs"
}

// Helper methods

// IsPending reports whether the request still awaits a decision
func (r *VisitorRequest) IsPending() bool {
	return r.Status == StatusPending
}

// Decide transitions the request to a terminal status
func (r *VisitorRequest) Decide(status RequestStatus, actor string) {
	now := time.Now()
	r.Status = status
	r.DecidedBy = actor
	r.DecidedAt = &now
}

// HasToken reports whether the resident holds a device token at all;
// plausibility filtering happens in the resolver.
func (r *Resident) HasToken() bool {
	return r.FCMToken != ""
}
