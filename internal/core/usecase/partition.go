package usecase

import (
	"fmt"

	"github.com/aerodocs/docuchat/internal/core/domain"
)

// PartitionRouter resolves which knowledge partitions a caller may query.
// The role to allowed-modes mapping is closed; anything outside it is
// rejected before retrieval or generation work begins.
type PartitionRouter struct {
	allowed map[domain.UserRole]map[domain.SessionMode]struct{}
}

func NewPartitionRouter() *PartitionRouter {
	return &PartitionRouter{
		allowed: map[domain.UserRole]map[domain.SessionMode]struct{}{
			domain.RoleRestrictedUser: {domain.ModePublic: {}},
			domain.RoleUser:           {domain.ModeDual: {}},
			domain.RoleAdmin:          {domain.ModeDual: {}},
		},
	}
}

// Authorize is fail-closed: unknown roles and unknown modes are denied.
func (r *PartitionRouter) Authorize(role domain.UserRole, mode domain.SessionMode) error {
	if !mode.Valid() {
		return domain.WrapError(domain.ErrAuthorizationDenied, "authorize session mode", fmt.Errorf("unknown mode %q", mode))
	}
	modes, ok := r.allowed[role]
	if !ok {
		return domain.WrapError(domain.ErrAuthorizationDenied, "authorize session mode", fmt.Errorf("unknown role %q", role))
	}
	if _, ok := modes[mode]; !ok {
		return domain.WrapError(domain.ErrAuthorizationDenied, "authorize session mode", fmt.Errorf("role %q may not open %q sessions", role, mode))
	}
	return nil
}

// Partitions returns the partitions queried for a turn in the given mode.
func (r *PartitionRouter) Partitions(mode domain.SessionMode) []domain.Partition {
	return mode.Partitions()
}
