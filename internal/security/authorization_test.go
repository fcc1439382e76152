package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

func actor(role domain.Role) domain.Actor {
	return domain.Actor{UserID: "1", Username: "u", Role: role, Authenticated: true}
}

func TestAuthorizeHasNoHierarchy(t *testing.T) {
	assert.True(t, Authorize(actor(domain.RoleStorekeeper), domain.RolesStores))
	assert.False(t, Authorize(actor(domain.RoleOperator), domain.RolesStores))
	assert.False(t, Authorize(actor(domain.RoleAdmin), []domain.Role{domain.RoleManager}))
	assert.False(t, Authorize(domain.Actor{Role: domain.RoleAdmin}, domain.RolesAdmin))
}

func TestWritePolicies(t *testing.T) {
	as := NewAuthorizationService(nil)
	cases := []struct {
		kind    domain.Kind
		role    domain.Role
		allowed bool
	}{
		{domain.KindEmployee, domain.RoleManager, true},
		{domain.KindEmployee, domain.RoleStorekeeper, false},
		{domain.KindTool, domain.RoleStorekeeper, true},
		{domain.KindTool, domain.RoleOperator, false},
		{domain.KindGRN, domain.RoleStorekeeper, true},
		{domain.KindMaterialIssue, domain.RoleStorekeeper, true},
		{domain.KindJobCard, domain.RoleOperator, true},
		{domain.KindJobCard, domain.RoleStorekeeper, false},
		{domain.KindProductionEntry, domain.RoleOperator, true},
		{domain.KindUser, domain.RoleManager, false},
		{domain.KindUser, domain.RoleAdmin, true},
	}
	for _, tc := range cases {
		err := as.CanWrite(actor(tc.role), tc.kind)
		if tc.allowed {
			assert.NoError(t, err, "%s by %s", tc.kind, tc.role)
		} else {
			assert.True(t, errors.Is(err, domain.ErrUnauthorized), "%s by %s", tc.kind, tc.role)
		}
	}
}

func TestCanReadRequiresAuthentication(t *testing.T) {
	as := NewAuthorizationService(nil)
	assert.NoError(t, as.CanRead(actor(domain.RoleOperator), domain.KindTool))
	assert.ErrorIs(t, as.CanRead(domain.Actor{}, domain.KindTool), domain.ErrUnauthorized)
}
