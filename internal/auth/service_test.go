package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webmail/backend/internal/domain"
	"webmail/backend/internal/storage/memory"
)

type recordingLabels struct {
	users []string
}

func (r *recordingLabels) CreateDefaultLabels(_ context.Context, userID string) error {
	r.users = append(r.users, userID)
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Store, *recordingLabels) {
	t.Helper()
	store := memory.NewStore()
	labels := &recordingLabels{}
	svc := NewService(store, store, NewJWTManager(testJWTConfig()), nil)
	svc.SetLabelInitializer(labels)
	return svc, store, labels
}

func registerAlice(t *testing.T, svc *Service) *AuthResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), RegisterInput{
		Email:    "Alice@Example.com",
		Username: "alice",
		Password: "Password123!",
	})
	require.NoError(t, err)
	return resp
}

func TestService_Register(t *testing.T) {
	svc, store, labels := newTestService(t)

	resp := registerAlice(t, svc)
	assert.NotEmpty(t, resp.User.ID)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Equal(t, "alice", resp.User.Username)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, []string{"alice@example.com"}, labels.users)

	stored, err := store.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "Password123!", stored.PasswordHash)
	assert.True(t, CheckPassword("Password123!", stored.PasswordHash))
}

func TestService_Register_Duplicates(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "alice@example.com", Username: "other", Password: "Password123!"})
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Register(ctx, RegisterInput{Email: "other@example.com", Username: "alice", Password: "Password123!"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestService_Register_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"bad email", RegisterInput{Email: "not-an-email", Username: "bob", Password: "Password123!"}, ErrInvalidEmail},
		{"short password", RegisterInput{Email: "bob@example.com", Username: "bob", Password: "short"}, ErrInvalidPassword},
		{"bad username", RegisterInput{Email: "bob@example.com", Username: "b b", Password: "Password123!"}, ErrInvalidUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestService_Login(t *testing.T) {
	svc, _, _ := newTestService(t)
	registerAlice(t, svc)
	ctx := context.Background()

	resp, err := svc.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "Password123!"})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)

	resp, err = svc.Login(ctx, LoginInput{Identifier: "alice", Password: "Password123!"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	_, err = svc.Login(ctx, LoginInput{Identifier: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginInput{Identifier: "nobody", Password: "Password123!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_AuthenticateAndLogout(t *testing.T) {
	svc, _, _ := newTestService(t)
	resp := registerAlice(t, svc)
	ctx := context.Background()

	claims, err := svc.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)

	require.NoError(t, svc.Logout(ctx, claims, resp.RefreshToken))

	_, err = svc.Authenticate(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = svc.Refresh(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestService_RefreshRotates(t *testing.T) {
	svc, _, _ := newTestService(t)
	resp := registerAlice(t, svc)
	ctx := context.Background()

	refreshed, err := svc.Refresh(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	_, err = svc.Authenticate(ctx, refreshed.AccessToken)
	assert.NoError(t, err)

	// 旧的刷新令牌不能再次使用
	_, err = svc.Refresh(ctx, resp.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// 访问令牌不能用于刷新
	_, err = svc.Refresh(ctx, refreshed.AccessToken)
	assert.Error(t, err)
}

func TestService_Me(t *testing.T) {
	svc, _, _ := newTestService(t)
	resp := registerAlice(t, svc)

	user, err := svc.Me(context.Background(), resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = svc.Me(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("12345678"))
	assert.ErrorIs(t, ValidatePassword("1234567"), ErrInvalidPassword)
	assert.ErrorIs(t, ValidatePassword(string(make([]byte, 73))), ErrInvalidPassword)
}
