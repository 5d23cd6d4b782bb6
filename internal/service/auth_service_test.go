package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/config"
	"github.com/dentacore/dentaflow/internal/domain"
	"github.com/dentacore/dentaflow/internal/repository/memory"
	"github.com/dentacore/dentaflow/pkg/auth"
)

func newAuthFixture(t *testing.T) (*AuthService, *auth.JWTManager) {
	t.Helper()
	jwtManager := auth.NewJWTManager(config.JWTConfig{
		Secret:          "test-secret-never-in-production",
		Issuer:          "dentaflow-test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	return NewAuthService(memory.NewUserRepository(), jwtManager, zap.NewNop()), jwtManager
}

func TestRegisterPatientAndLogin(t *testing.T) {
	svc, jwtManager := newAuthFixture(t)
	ctx := context.Background()

	pair, err := svc.RegisterPatient(ctx, &RegisterPatientCommand{
		Email:     "mina@example.com",
		Password:  "correct horse battery",
		FirstName: "Mina",
		LastName:  "Rahman",
	}, "127.0.0.1")
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}

	claims, err := jwtManager.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Role != domain.RolePatient {
		t.Errorf("role = %s, want patient", claims.Role)
	}
	if claims.PatientID == nil {
		t.Error("registered patient has no wallet subject in claims")
	}

	loginPair, err := svc.Login(ctx, "mina@example.com", "correct horse battery", "")
	if err != nil {
		t.Fatalf("Login after register: %v", err)
	}
	loginClaims, err := jwtManager.ValidateAccessToken(loginPair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if loginClaims.PatientID == nil || *loginClaims.PatientID != *claims.PatientID {
		t.Error("login claims carry a different patient ID than registration")
	}

	if _, err := svc.RefreshToken(ctx, loginPair.RefreshToken); err != nil {
		t.Errorf("RefreshToken: %v", err)
	}
}

func TestRegisterPatientRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	cmd := &RegisterPatientCommand{
		Email:     "dup@example.com",
		Password:  "correct horse battery",
		FirstName: "A",
		LastName:  "B",
	}
	if _, err := svc.RegisterPatient(ctx, cmd, ""); err != nil {
		t.Fatalf("first RegisterPatient: %v", err)
	}
	if _, err := svc.RegisterPatient(ctx, cmd, ""); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate register err = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterPatientValidation(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	if _, err := svc.RegisterPatient(ctx, &RegisterPatientCommand{
		Email: "x@example.com", Password: "correct horse battery",
		FirstName: "  ", LastName: "B",
	}, ""); err == nil {
		t.Error("blank first name was accepted")
	}

	if _, err := svc.RegisterPatient(ctx, &RegisterPatientCommand{
		Email: "x@example.com", Password: "short",
		FirstName: "A", LastName: "B",
	}, ""); err == nil {
		t.Error("weak password was accepted")
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	if _, err := svc.RegisterPatient(ctx, &RegisterPatientCommand{
		Email:     "locked@example.com",
		Password:  "correct horse battery",
		FirstName: "A",
		LastName:  "B",
	}, ""); err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}

	for i := 0; i < maxFailedAttempts; i++ {
		if _, err := svc.Login(ctx, "locked@example.com", "wrong password!", ""); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d err = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	// Even the right password bounces off a locked account.
	if _, err := svc.Login(ctx, "locked@example.com", "correct horse battery", ""); !errors.Is(err, ErrAccountLocked) {
		t.Errorf("locked login err = %v, want ErrAccountLocked", err)
	}
}
