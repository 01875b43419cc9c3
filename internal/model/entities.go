package model

import (
	"fmt"
	"time"
)

// Role is a family member's role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Permissions are per-member capability flags granted by a family admin.
type Permissions struct {
	Create bool `json:"create"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// Member is an entry of a family's members sub-collection.
type Member struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email,omitempty"`
	Role        Role        `json:"role"`
	Permissions Permissions `json:"permissions"`
	JoinedAt    time.Time   `json:"joinedAt"`
}

// CanDelete reports whether the member may delete family tasks.
func (m *Member) CanDelete() bool {
	return m.Role == RoleAdmin || m.Permissions.Delete
}

// Family is a group of users sharing public tasks.
//
// Members is only populated in the local cache; remotely the members
// live in their own sub-collection.
type Family struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	AdminID    string    `json:"adminId"`
	InviteCode string    `json:"inviteCode,omitempty"`
	Members    []Member  `json:"members,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Validate checks the write preconditions of a family.
func (f *Family) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: family id is required", ErrInvalidArgument)
	}
	if f.Name == "" {
		return fmt.Errorf("%w: family %s: name is required", ErrInvalidArgument, f.ID)
	}
	return nil
}

// Clone returns a deep copy of the family.
func (f Family) Clone() Family {
	if f.Members != nil {
		f.Members = append([]Member(nil), f.Members...)
	}
	return f
}

// User is an application account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	FamilyID  string    `json:"familyId,omitempty"`
	Role      Role      `json:"role,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the write preconditions of a user.
func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	return nil
}

// ApprovalStatus is the state of a completion request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is a member's request that an admin confirm a task completion.
type Approval struct {
	ID            string         `json:"id"`
	TaskID        string         `json:"taskId"`
	FamilyID      string         `json:"familyId"`
	RequesterID   string         `json:"requesterId"`
	RequesterName string         `json:"requesterName"`
	Status        ApprovalStatus `json:"status"`
	AdminID       string         `json:"adminId,omitempty"`
	AdminComment  string         `json:"adminComment,omitempty"`
	RequestedAt   time.Time      `json:"requestedAt"`
	RespondedAt   *time.Time     `json:"respondedAt,omitempty"`
}

// Validate checks the write preconditions of an approval.
func (a *Approval) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: approval id is required", ErrInvalidArgument)
	}
	if a.TaskID == "" || a.FamilyID == "" {
		return fmt.Errorf("%w: approval %s: taskId and familyId are required", ErrInvalidArgument, a.ID)
	}
	return nil
}

// HistoryAction is the kind of event recorded in the shared history.
type HistoryAction string

const (
	ActionCreated           HistoryAction = "created"
	ActionCompleted         HistoryAction = "completed"
	ActionUncompleted       HistoryAction = "uncompleted"
	ActionEdited            HistoryAction = "edited"
	ActionDeleted           HistoryAction = "deleted"
	ActionApprovalRequested HistoryAction = "approval_requested"
	ActionApproved          HistoryAction = "approved"
	ActionRejected          HistoryAction = "rejected"
)

// HistoryItem is an append-only record of something that happened to a task.
type HistoryItem struct {
	ID        string        `json:"id"`
	TaskID    string        `json:"taskId"`
	TaskTitle string        `json:"taskTitle"`
	Action    HistoryAction `json:"action"`
	UserID    string        `json:"userId"`
	UserName  string        `json:"userName"`
	FamilyID  string        `json:"familyId,omitempty"`
	Details   string        `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Validate checks the write preconditions of a history item.
func (h *HistoryItem) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("%w: history id is required", ErrInvalidArgument)
	}
	if h.UserID == "" || h.Action == "" {
		return fmt.Errorf("%w: history %s: userId and action are required", ErrInvalidArgument, h.ID)
	}
	return nil
}

// InviteCode maps a 6-character code to a family until it expires.
type InviteCode struct {
	Code      string    `json:"code"`
	FamilyID  string    `json:"familyId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
