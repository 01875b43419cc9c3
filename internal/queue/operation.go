package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mschirtzinger/famtasks/internal/model"
)

// Operation is a typed mutation intent.
//
// The concrete types below are the only implementations, so every
// (collection, type, payload) combination that can be queued is one the
// executor knows how to apply.
type Operation interface {
	// Kind is the mutation kind.
	Kind() model.OpType

	// Collection is the entity collection the operation writes.
	Collection() model.Collection

	// EntityID is the id of the written entity.
	EntityID() string

	// Accept dispatches the operation to the matching Visitor method.
	Accept(ctx context.Context, v Visitor) error

	payload() any
}

// Visitor applies operations to a destination, typically the remote gateway.
type Visitor interface {
	SaveTask(ctx context.Context, task model.Task) error
	DeleteTask(ctx context.Context, taskID string) error
	SaveFamily(ctx context.Context, family model.Family) error
	SaveUser(ctx context.Context, user model.User) error
	SaveApproval(ctx context.Context, approval model.Approval) error
	DeleteApproval(ctx context.Context, approvalID string) error
	AddHistoryItem(ctx context.Context, item model.HistoryItem) error
}

// TaskSave creates or updates a task.
type TaskSave struct {
	kind model.OpType
	Task model.Task
}

// CreateTask returns an operation creating task.
func CreateTask(task model.Task) *TaskSave { return &TaskSave{kind: model.OpCreate, Task: task.Clone()} }

// UpdateTask returns an operation updating task.
func UpdateTask(task model.Task) *TaskSave { return &TaskSave{kind: model.OpUpdate, Task: task.Clone()} }

func (o *TaskSave) Kind() model.OpType           { return o.kind }
func (o *TaskSave) Collection() model.Collection { return model.CollectionTasks }
func (o *TaskSave) EntityID() string             { return o.Task.ID }
func (o *TaskSave) payload() any                 { return o.Task }

func (o *TaskSave) Accept(ctx context.Context, v Visitor) error {
	return v.SaveTask(ctx, o.Task)
}

// TaskDelete deletes a task by id.
type TaskDelete struct {
	TaskID string
}

// DeleteTask returns an operation deleting the task id.
func DeleteTask(id string) *TaskDelete { return &TaskDelete{TaskID: id} }

func (o *TaskDelete) Kind() model.OpType           { return model.OpDelete }
func (o *TaskDelete) Collection() model.Collection { return model.CollectionTasks }
func (o *TaskDelete) EntityID() string             { return o.TaskID }
func (o *TaskDelete) payload() any                 { return idPayload{ID: o.TaskID} }

func (o *TaskDelete) Accept(ctx context.Context, v Visitor) error {
	return v.DeleteTask(ctx, o.TaskID)
}

// FamilySave creates or updates a family document.
type FamilySave struct {
	kind   model.OpType
	Family model.Family
}

// SaveFamily returns an operation writing family. A zero CreatedAt marks a create.
func SaveFamily(family model.Family) *FamilySave {
	kind := model.OpUpdate
	if family.CreatedAt.IsZero() {
		kind = model.OpCreate
	}
	return &FamilySave{kind: kind, Family: family.Clone()}
}

func (o *FamilySave) Kind() model.OpType           { return o.kind }
func (o *FamilySave) Collection() model.Collection { return model.CollectionFamilies }
func (o *FamilySave) EntityID() string             { return o.Family.ID }
func (o *FamilySave) payload() any                 { return o.Family }

func (o *FamilySave) Accept(ctx context.Context, v Visitor) error {
	return v.SaveFamily(ctx, o.Family)
}

// UserSave creates or updates a user document.
type UserSave struct {
	kind model.OpType
	User model.User
}

// SaveUser returns an operation writing user. A zero CreatedAt marks a create.
func SaveUser(user model.User) *UserSave {
	kind := model.OpUpdate
	if user.CreatedAt.IsZero() {
		kind = model.OpCreate
	}
	return &UserSave{kind: kind, User: user}
}

func (o *UserSave) Kind() model.OpType           { return o.kind }
func (o *UserSave) Collection() model.Collection { return model.CollectionUsers }
func (o *UserSave) EntityID() string             { return o.User.ID }
func (o *UserSave) payload() any                 { return o.User }

func (o *UserSave) Accept(ctx context.Context, v Visitor) error {
	return v.SaveUser(ctx, o.User)
}

// ApprovalSave creates or updates an approval.
type ApprovalSave struct {
	kind     model.OpType
	Approval model.Approval
}

// SaveApproval returns an operation writing approval. Pending approvals are
// creates; answered approvals are updates.
func SaveApproval(approval model.Approval) *ApprovalSave {
	kind := model.OpUpdate
	if approval.Status == "" || approval.Status == model.ApprovalPending {
		kind = model.OpCreate
	}
	return &ApprovalSave{kind: kind, Approval: approval}
}

func (o *ApprovalSave) Kind() model.OpType           { return o.kind }
func (o *ApprovalSave) Collection() model.Collection { return model.CollectionApprovals }
func (o *ApprovalSave) EntityID() string             { return o.Approval.ID }
func (o *ApprovalSave) payload() any                 { return o.Approval }

func (o *ApprovalSave) Accept(ctx context.Context, v Visitor) error {
	return v.SaveApproval(ctx, o.Approval)
}

// ApprovalDelete deletes an approval by id.
type ApprovalDelete struct {
	ApprovalID string
}

// DeleteApproval returns an operation deleting the approval id.
func DeleteApproval(id string) *ApprovalDelete { return &ApprovalDelete{ApprovalID: id} }

func (o *ApprovalDelete) Kind() model.OpType           { return model.OpDelete }
func (o *ApprovalDelete) Collection() model.Collection { return model.CollectionApprovals }
func (o *ApprovalDelete) EntityID() string             { return o.ApprovalID }
func (o *ApprovalDelete) payload() any                 { return idPayload{ID: o.ApprovalID} }

func (o *ApprovalDelete) Accept(ctx context.Context, v Visitor) error {
	return v.DeleteApproval(ctx, o.ApprovalID)
}

// HistoryAdd appends a history item. History is append-only.
type HistoryAdd struct {
	Item model.HistoryItem
}

// AddHistory returns an operation appending item.
func AddHistory(item model.HistoryItem) *HistoryAdd { return &HistoryAdd{Item: item} }

func (o *HistoryAdd) Kind() model.OpType           { return model.OpCreate }
func (o *HistoryAdd) Collection() model.Collection { return model.CollectionHistory }
func (o *HistoryAdd) EntityID() string             { return o.Item.ID }
func (o *HistoryAdd) payload() any                 { return o.Item }

func (o *HistoryAdd) Accept(ctx context.Context, v Visitor) error {
	return v.AddHistoryItem(ctx, o.Item)
}

type idPayload struct {
	ID string `json:"id"`
}

// Encode serializes the operation payload for a PendingOperation envelope.
func Encode(op Operation) (json.RawMessage, error) {
	data, err := json.Marshal(op.payload())
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", op.Kind(), op.Collection(), err)
	}
	return data, nil
}

// Decode reconstructs the typed operation of a persisted envelope.
// Unknown or invalid (collection, type) combinations are rejected with
// model.ErrInvalidArgument.
func Decode(p model.PendingOperation) (Operation, error) {
	switch p.Collection {
	case model.CollectionTasks:
		switch p.Type {
		case model.OpCreate, model.OpUpdate:
			var t model.Task
			if err := unmarshal(p, &t); err != nil {
				return nil, err
			}
			return &TaskSave{kind: p.Type, Task: t}, nil
		case model.OpDelete:
			id, err := unmarshalID(p)
			if err != nil {
				return nil, err
			}
			return DeleteTask(id), nil
		}

	case model.CollectionFamilies:
		if p.Type == model.OpCreate || p.Type == model.OpUpdate {
			var f model.Family
			if err := unmarshal(p, &f); err != nil {
				return nil, err
			}
			return &FamilySave{kind: p.Type, Family: f}, nil
		}

	case model.CollectionUsers:
		if p.Type == model.OpCreate || p.Type == model.OpUpdate {
			var u model.User
			if err := unmarshal(p, &u); err != nil {
				return nil, err
			}
			return &UserSave{kind: p.Type, User: u}, nil
		}

	case model.CollectionApprovals:
		switch p.Type {
		case model.OpCreate, model.OpUpdate:
			var a model.Approval
			if err := unmarshal(p, &a); err != nil {
				return nil, err
			}
			return &ApprovalSave{kind: p.Type, Approval: a}, nil
		case model.OpDelete:
			id, err := unmarshalID(p)
			if err != nil {
				return nil, err
			}
			return DeleteApproval(id), nil
		}

	case model.CollectionHistory:
		if p.Type == model.OpCreate {
			var h model.HistoryItem
			if err := unmarshal(p, &h); err != nil {
				return nil, err
			}
			return AddHistory(h), nil
		}
	}
	return nil, fmt.Errorf("%w: unsupported operation %s on %q", model.ErrInvalidArgument, p.Type, p.Collection)
}

func unmarshal(p model.PendingOperation, v any) error {
	if err := json.Unmarshal(p.Data, v); err != nil {
		return fmt.Errorf("%w: operation %s: malformed payload: %v", model.ErrInvalidArgument, p.ID, err)
	}
	return nil
}

func unmarshalID(p model.PendingOperation) (string, error) {
	var ref idPayload
	if err := unmarshal(p, &ref); err != nil {
		return "", err
	}
	if ref.ID == "" {
		return "", fmt.Errorf("%w: operation %s: missing id", model.ErrInvalidArgument, p.ID)
	}
	return ref.ID, nil
}

// validate checks the payload preconditions of op.
func validate(op Operation) error {
	switch o := op.(type) {
	case *TaskSave:
		return o.Task.Validate()
	case *FamilySave:
		return o.Family.Validate()
	case *UserSave:
		return o.User.Validate()
	case *ApprovalSave:
		return o.Approval.Validate()
	case *HistoryAdd:
		return o.Item.Validate()
	}
	if op.EntityID() == "" {
		return fmt.Errorf("%w: %s %s: missing id", model.ErrInvalidArgument, op.Kind(), op.Collection())
	}
	return nil
}
