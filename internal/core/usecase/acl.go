package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/docvault/internal/core/ports"
)

// ACLResolverUseCase computes accessible scope by group intersection.
// A user with zero memberships has zero accessible documents; that is the
// default-deny policy, not an error.
type ACLResolverUseCase struct {
	acl  ports.ACLRepository
	docs ports.DocumentRepository
}

func NewACLResolverUseCase(acl ports.ACLRepository, docs ports.DocumentRepository) *ACLResolverUseCase {
	return &ACLResolverUseCase{acl: acl, docs: docs}
}

func (uc *ACLResolverUseCase) AccessibleGroupIDs(ctx context.Context, userID string) ([]string, error) {
	groups, err := uc.acl.GroupIDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve user groups: %w", err)
	}
	return groups, nil
}

func (uc *ACLResolverUseCase) AccessibleDocumentIDs(ctx context.Context, groupIDs []string, orgID string) ([]string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	ids, err := uc.acl.DocumentIDsForGroups(ctx, groupIDs, orgID)
	if err != nil {
		return nil, fmt.Errorf("resolve accessible documents: %w", err)
	}
	return ids, nil
}

func (uc *ACLResolverUseCase) HasAccess(ctx context.Context, documentID, userID string) (bool, error) {
	userGroups, err := uc.acl.GroupIDsForUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("resolve user groups: %w", err)
	}
	if len(userGroups) == 0 {
		return false, nil
	}
	docGroups, err := uc.acl.GroupIDsForDocument(ctx, documentID)
	if err != nil {
		return false, fmt.Errorf("resolve document groups: %w", err)
	}
	member := make(map[string]struct{}, len(userGroups))
	for _, g := range userGroups {
		member[g] = struct{}{}
	}
	for _, g := range docGroups {
		if _, ok := member[g]; ok {
			return true, nil
		}
	}
	return false, nil
}
