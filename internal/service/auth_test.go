package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicktab/self-order-api/internal/dto"
	"github.com/quicktab/self-order-api/internal/model"
	"github.com/quicktab/self-order-api/internal/store/memstore"
)

func TestAuthService_Register(t *testing.T) {
	svc := NewAuthService(memstore.New(), "test-secret", time.Hour)

	resp, err := svc.Register(context.Background(), "test@example.com", "password123", "John Doe", model.RoleCustomer)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.User.ID)
	assert.Equal(t, "test@example.com", resp.User.Email)
	assert.Equal(t, model.RoleCustomer, resp.User.Role)
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	svc := NewAuthService(memstore.New(), "test-secret", time.Hour)

	_, err := svc.Register(context.Background(), "test@example.com", "password123", "John Doe", model.RoleCustomer)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "test@example.com", "otherpassword", "Jane Doe", model.RoleCustomer)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthService_Login(t *testing.T) {
	svc := NewAuthService(memstore.New(), "test-secret", time.Hour)

	_, err := svc.Register(context.Background(), "test@example.com", "password123", "John Doe", model.RoleStaff)
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "test@example.com", Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, model.RoleStaff, resp.User.Role)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	svc := NewAuthService(memstore.New(), "test-secret", time.Hour)

	_, err := svc.Register(context.Background(), "test@example.com", "password123", "John Doe", model.RoleCustomer)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), dto.LoginRequest{
		Email: "test@example.com", Password: "wrong",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Login_UnknownUser(t *testing.T) {
	svc := NewAuthService(memstore.New(), "test-secret", time.Hour)

	_, err := svc.Login(context.Background(), dto.LoginRequest{
		Email: "nobody@example.com", Password: "password123",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
