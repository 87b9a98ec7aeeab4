package service

import (
	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/web/session"
)

// AuthService is the credential gateway: it turns a credential pair
// into a signed bearer token.
type AuthService struct {
	UserService  UserService
	AuditService AuditService
	Tokens       *session.Manager
}

// Login verifies the credential pair and issues a token. The failure is
// uniform: callers never learn which of username or password was wrong.
func (s *AuthService) Login(username, password string) (string, *model.User, error) {
	if username == "" || password == "" {
		return "", nil, common.New(common.KindUnauthorized, "invalid username or password")
	}

	user := s.UserService.CheckUser(username, password)
	if user == nil {
		return "", nil, common.New(common.KindUnauthorized, "invalid username or password")
	}

	token, _, err := s.Tokens.Issue(user)
	if err != nil {
		return "", nil, err
	}

	s.AuditService.Record(user.Username, "login", "", OutcomeSuccess, "")
	return token, user, nil
}
