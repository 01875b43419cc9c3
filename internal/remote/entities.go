package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mschirtzinger/famtasks/internal/docstore"
	"github.com/mschirtzinger/famtasks/internal/model"
)

// SaveApproval creates or replaces an approval request.
func (g *Gateway) SaveApproval(ctx context.Context, approval model.Approval) error {
	if err := approval.Validate(); err != nil {
		return err
	}
	return g.put(ctx, ApprovalsPath, approval.ID, approval)
}

// DeleteApproval deletes an approval request. Missing approvals are a no-op.
func (g *Gateway) DeleteApproval(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: approval id is required", model.ErrInvalidArgument)
	}
	if err := g.store.Delete(ctx, ApprovalsPath, id); err != nil {
		return fmt.Errorf("failed to delete approval %s: %w", id, err)
	}
	return nil
}

func setApprovalID(a *model.Approval, id string) {
	if a.ID == "" {
		a.ID = id
	}
}

func approvalsQuery(familyID string) docstore.Query {
	return docstore.Query{Collection: ApprovalsPath, Filters: []docstore.Filter{
		docstore.Where("familyId", docstore.OpEqual, familyID),
	}}
}

func sortApprovals(out []model.Approval) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
}

// GetApprovalsByFamily returns the approvals of familyID, newest first.
func (g *Gateway) GetApprovalsByFamily(ctx context.Context, familyID string) ([]model.Approval, error) {
	docs, err := g.store.Query(ctx, approvalsQuery(familyID))
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	out := decodeAll(g, docs, setApprovalID)
	sortApprovals(out)
	return out, nil
}

// SubscribeToFamilyApprovals streams the full approval set of familyID.
func (g *Gateway) SubscribeToFamilyApprovals(ctx context.Context, familyID string, fn func([]model.Approval)) (func(), error) {
	unsub, err := g.store.Subscribe(ctx, approvalsQuery(familyID), func(docs []docstore.Document) {
		out := decodeAll(g, docs, setApprovalID)
		sortApprovals(out)
		fn(out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to approvals: %w", err)
	}
	return unsub, nil
}

// AddHistoryItem appends an entry to the shared history.
func (g *Gateway) AddHistoryItem(ctx context.Context, item model.HistoryItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	return g.put(ctx, HistoryPath, item.ID, item)
}

func setHistoryID(h *model.HistoryItem, id string) {
	if h.ID == "" {
		h.ID = id
	}
}

// GetHistoryByUser returns the history of userID, newest first, capped at
// limit entries (zero means all).
func (g *Gateway) GetHistoryByUser(ctx context.Context, userID string, limit int) ([]model.HistoryItem, error) {
	return g.queryHistory(ctx, docstore.Where("userId", docstore.OpEqual, userID), limit)
}

// GetHistoryByFamily returns the history of familyID, newest first, capped
// at limit entries (zero means all).
func (g *Gateway) GetHistoryByFamily(ctx context.Context, familyID string, limit int) ([]model.HistoryItem, error) {
	return g.queryHistory(ctx, docstore.Where("familyId", docstore.OpEqual, familyID), limit)
}

func (g *Gateway) queryHistory(ctx context.Context, f docstore.Filter, limit int) ([]model.HistoryItem, error) {
	docs, err := g.store.Query(ctx, docstore.Query{Collection: HistoryPath, Filters: []docstore.Filter{f}})
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	out := decodeAll(g, docs, setHistoryID)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveFamily creates or replaces a family document. Members are stored in
// their own sub-collection and are not written here.
func (g *Gateway) SaveFamily(ctx context.Context, family model.Family) error {
	if err := family.Validate(); err != nil {
		return err
	}
	family.Members = nil
	return g.put(ctx, FamiliesPath, family.ID, family)
}

// GetFamily returns the family id without its members.
func (g *Gateway) GetFamily(ctx context.Context, id string) (model.Family, error) {
	doc, err := g.store.Get(ctx, FamiliesPath, id)
	if err != nil {
		return model.Family{}, fmt.Errorf("failed to get family %s: %w", id, err)
	}
	var f model.Family
	if err := doc.Decode(&f); err != nil {
		return model.Family{}, fmt.Errorf("failed to decode family %s: %w", id, err)
	}
	if f.ID == "" {
		f.ID = doc.ID
	}
	return f, nil
}

// SaveMember creates or replaces a member of familyID.
func (g *Gateway) SaveMember(ctx context.Context, familyID string, member model.Member) error {
	if familyID == "" || member.ID == "" {
		return fmt.Errorf("%w: family id and member id are required", model.ErrInvalidArgument)
	}
	return g.put(ctx, MembersPath(familyID), member.ID, member)
}

// GetFamilyMembers returns the members of familyID ordered by join time.
func (g *Gateway) GetFamilyMembers(ctx context.Context, familyID string) ([]model.Member, error) {
	docs, err := g.store.Query(ctx, docstore.Query{Collection: MembersPath(familyID)})
	if err != nil {
		return nil, fmt.Errorf("failed to query members of %s: %w", familyID, err)
	}
	out := decodeAll(g, docs, func(m *model.Member, id string) {
		if m.ID == "" {
			m.ID = id
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (g *Gateway) getMember(ctx context.Context, familyID, userID string) (model.Member, error) {
	doc, err := g.store.Get(ctx, MembersPath(familyID), userID)
	if err != nil {
		return model.Member{}, fmt.Errorf("failed to get member %s: %w", userID, err)
	}
	var m model.Member
	if err := doc.Decode(&m); err != nil {
		return model.Member{}, fmt.Errorf("failed to decode member %s: %w", userID, err)
	}
	return m, nil
}

// SaveUser creates or replaces a user document.
func (g *Gateway) SaveUser(ctx context.Context, user model.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return g.put(ctx, UsersPath, user.ID, user)
}

// GetUser returns the user id.
func (g *Gateway) GetUser(ctx context.Context, id string) (model.User, error) {
	doc, err := g.store.Get(ctx, UsersPath, id)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	var u model.User
	if err := doc.Decode(&u); err != nil {
		return model.User{}, fmt.Errorf("failed to decode user %s: %w", id, err)
	}
	if u.ID == "" {
		u.ID = doc.ID
	}
	return u, nil
}

// InviteCodeLength is the length of a family invite code.
const InviteCodeLength = 6

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != InviteCodeLength {
		return "", fmt.Errorf("%w: invite code must have %d characters", model.ErrInvalidArgument, InviteCodeLength)
	}
	return code, nil
}

// SaveInviteCode publishes an invite code for a family.
func (g *Gateway) SaveInviteCode(ctx context.Context, invite model.InviteCode) error {
	code, err := normalizeCode(invite.Code)
	if err != nil {
		return err
	}
	if invite.FamilyID == "" {
		return fmt.Errorf("%w: invite code %s: family id is required", model.ErrInvalidArgument, code)
	}
	invite.Code = code
	return g.put(ctx, InviteCodesPath, code, invite)
}

// ResolveInviteCode returns the family id an unexpired invite code maps to.
// Unknown and expired codes return model.ErrNotFound.
func (g *Gateway) ResolveInviteCode(ctx context.Context, code string) (string, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return "", err
	}
	doc, err := g.store.Get(ctx, InviteCodesPath, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", fmt.Errorf("invite code %s: %w", code, model.ErrNotFound)
		}
		return "", fmt.Errorf("failed to resolve invite code: %w", err)
	}
	var invite model.InviteCode
	if err := doc.Decode(&invite); err != nil {
		return "", fmt.Errorf("failed to decode invite code %s: %w", code, err)
	}
	if !invite.ExpiresAt.IsZero() && !g.config.Clock.Now().Before(invite.ExpiresAt) {
		return "", fmt.Errorf("invite code %s expired: %w", code, model.ErrNotFound)
	}
	return invite.FamilyID, nil
}
