package engine

import (
	"context"

	"github.com/mschirtzinger/famtasks/internal/model"
	"github.com/mschirtzinger/famtasks/internal/remote"
)

// gatewayVisitor executes queued operations against the gateway on
// behalf of the engine's user.
type gatewayVisitor struct {
	gateway *remote.Gateway
	actor   remote.Actor
}

func (v *gatewayVisitor) SaveTask(ctx context.Context, task model.Task) error {
	return v.gateway.SaveTask(ctx, task)
}

func (v *gatewayVisitor) DeleteTask(ctx context.Context, id string) error {
	return v.gateway.DeleteTask(ctx, id, v.actor)
}

func (v *gatewayVisitor) SaveFamily(ctx context.Context, family model.Family) error {
	return v.gateway.SaveFamily(ctx, family)
}

func (v *gatewayVisitor) SaveUser(ctx context.Context, user model.User) error {
	return v.gateway.SaveUser(ctx, user)
}

func (v *gatewayVisitor) SaveApproval(ctx context.Context, approval model.Approval) error {
	return v.gateway.SaveApproval(ctx, approval)
}

func (v *gatewayVisitor) DeleteApproval(ctx context.Context, id string) error {
	return v.gateway.DeleteApproval(ctx, id)
}

func (v *gatewayVisitor) AddHistoryItem(ctx context.Context, item model.HistoryItem) error {
	return v.gateway.AddHistoryItem(ctx, item)
}
