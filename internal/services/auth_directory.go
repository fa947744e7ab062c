package services

import (
	"context"
	"errors"
	"fmt"

	fbauth "firebase.google.com/go/v4/auth"

	"github.com/folio/backend/internal/models"
)

// FirebaseAuthDirectory reads the identity side of a user from Firebase Auth.
type FirebaseAuthDirectory struct {
	client *fbauth.Client
}

func NewFirebaseAuthDirectory(client *fbauth.Client) *FirebaseAuthDirectory {
	return &FirebaseAuthDirectory{client: client}
}

func (d *FirebaseAuthDirectory) Lookup(ctx context.Context, userID string) (*models.AuthRecord, error) {
	u, err := d.client.GetUser(ctx, userID)
	if err != nil {
		if fbauth.IsUserNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("firebase get user %s: %w", userID, err)
	}
	rec := &models.AuthRecord{UID: userID, Disabled: u.Disabled}
	if u.UserInfo != nil {
		rec.Email = u.Email
		rec.DisplayName = u.DisplayName
	}
	return rec, nil
}

// RecordAuthDirectory answers lookups from the user store itself. It stands in for an
// identity provider in local runs, where only required-field checks are meaningful.
type RecordAuthDirectory struct {
	users UserStore
}

func NewRecordAuthDirectory(users UserStore) *RecordAuthDirectory {
	return &RecordAuthDirectory{users: users}
}

func (d *RecordAuthDirectory) Lookup(ctx context.Context, userID string) (*models.AuthRecord, error) {
	u, err := d.users.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.AuthRecord{UID: u.UserID, Email: u.Email, DisplayName: u.Name}, nil
}
