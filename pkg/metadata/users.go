package metadata

import (
	"context"
	"errors"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"gorm.io/gorm"
)

func (s *Store) CreateUser(ctx context.Context, email, hashedPassword string) (types.User, error) {
	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return types.User{}, fault.New(fault.Conflict, "email already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return types.User{}, storeErr(err, "")
	}

	user := User{Email: email, HashedPassword: hashedPassword}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return types.User{}, storeErr(err, "")
	}
	return user.toType(), nil
}

// GetUserByEmail also returns the stored password hash for login checks.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (types.User, string, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return types.User{}, "", storeErr(err, "user not found")
	}
	return user.toType(), user.HashedPassword, nil
}

func (s *Store) GetUser(ctx context.Context, id types.UserID) (types.User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, int64(id)).Error; err != nil {
		return types.User{}, storeErr(err, "user not found")
	}
	return user.toType(), nil
}
