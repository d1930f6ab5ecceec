package model

import "time"

// Mapping lifecycle statuses.
const (
	MappingStatusUnclassified          = "unclassified"
	MappingStatusPendingClassification = "pending_classification"
	MappingStatusAutoApproved          = "auto_approved"
	MappingStatusPendingReview         = "pending_review"
	MappingStatusUnmappable            = "unmappable"
	MappingStatusApproved              = "approved"
	MappingStatusRejected              = "rejected"
	MappingStatusInvested              = "invested"
)

// Submission sources. The source decides which auto-approval bar applies.
const (
	SourceUserInitiated    = "user_initiated"
	SourceAdminBulkUpload  = "admin_bulk_upload"
	SourceReclassification = "auto_reclassification"
)

// Admin decision values.
const (
	DecisionPending  = "pending"
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Mapping links one bank-card transaction to a candidate ticker and its
// approval lifecycle. It is the only entity multiple workers contend
// over; all status changes go through guarded updates in the repository.
type Mapping struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	TransactionID uint   `gorm:"uniqueIndex;not null" json:"transaction_id"`
	MerchantName  string `gorm:"size:255;not null" json:"merchant_name"`

	Ticker      string  `gorm:"size:12" json:"ticker"`
	CompanyName string  `gorm:"size:255" json:"company_name"`
	Category    string  `gorm:"size:100" json:"category"`
	Confidence  float64 `json:"confidence"`

	Source        string `gorm:"size:30;not null;index" json:"source"`
	Status        string `gorm:"size:30;not null;default:unclassified;index" json:"status"`
	AdminDecision string `gorm:"size:20;not null;default:pending" json:"admin_decision"`
	AutoApproved  bool   `gorm:"not null;default:false" json:"auto_approved"`

	ClassifyAttempts int    `gorm:"not null;default:0" json:"classify_attempts"`
	InvestAttempts   int    `gorm:"not null;default:0" json:"invest_attempts"`
	StatusReason     string `gorm:"size:512" json:"status_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// One-to-many relation: every classifier call against this mapping.
	Attempts []ClassificationAttempt `gorm:"foreignKey:MappingID" json:"attempts,omitempty"`
}

func (Mapping) TableName() string {
	return "mappings"
}

// allowedTransitions is the full state machine. Terminal states have no
// outgoing edges, so nothing can ever move a mapping backward out of
// rejected, unmappable or invested.
var allowedTransitions = map[string][]string{
	MappingStatusUnclassified:          {MappingStatusPendingClassification},
	MappingStatusPendingClassification: {MappingStatusAutoApproved, MappingStatusPendingReview, MappingStatusUnmappable},
	MappingStatusAutoApproved:          {MappingStatusApproved},
	MappingStatusPendingReview:         {MappingStatusApproved, MappingStatusRejected},
	// approved -> pending_review is the escalation path after the
	// purchase retry budget is exhausted.
	MappingStatusApproved: {MappingStatusInvested, MappingStatusRejected, MappingStatusPendingReview},
}

// CanTransition reports whether from -> to is a legal state machine edge.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether the status has no outgoing edges.
func IsTerminalStatus(status string) bool {
	return len(allowedTransitions[status]) == 0
}
