package repository

import (
	"context"
	"errors"

	"pixelgram/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Exists(ctx context.Context, id uint) (bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id uint, changes ProfileChanges) error
	ListExcept(ctx context.Context, id uint, limit int) ([]models.User, error)
	GetProfile(ctx context.Context, id uint) (*models.User, error)
}

// ProfileChanges carries the profile fields to overwrite; nil fields are left alone.
type ProfileChanges struct {
	Bio            *string
	Gender         *string
	ProfilePicture *string
}

func (c ProfileChanges) columns() map[string]interface{} {
	out := make(map[string]interface{}, 3)
	if c.Bio != nil {
		out["bio"] = *c.Bio
	}
	if c.Gender != nil {
		out["gender"] = *c.Gender
	}
	if c.ProfilePicture != nil {
		out["profile_picture"] = *c.ProfilePicture
	}
	return out
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, classify(err, "User", id)
	}
	return &user, nil
}

// GetByEmail returns (nil, nil) when no user has the email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err, "User", email)
	}
	return &user, nil
}

// GetByUsername returns (nil, nil) when no user has the username.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err, "User", username)
	}
	return &user, nil
}

func (r *userRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, classify(err, "User", id)
	}
	return count > 0, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Omit("Posts").Create(user).Error; err != nil {
		err = classify(err, "User", user.Email)
		if models.HasCode(err, models.CodeConflict) {
			return models.NewConflictError("User already exists with this email or username")
		}
		return err
	}
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uint, changes ProfileChanges) error {
	cols := changes.columns()
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return classify(res.Error, "User", id)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

func (r *userRepository) ListExcept(ctx context.Context, id uint, limit int) ([]models.User, error) {
	users := []models.User{}
	q := r.db.WithContext(ctx).Omit("password").Where("id <> ?", id).Order("created_at DESC")
	if err := paginate(q, limit, 0).Find(&users).Error; err != nil {
		return nil, classify(err, "User", id)
	}
	return users, nil
}

// GetProfile loads the user with posts (newest first) and the follower,
// following and bookmark id sets.
func (r *userRepository) GetProfile(ctx context.Context, id uint) (*models.User, error) {
	db := r.db.WithContext(ctx)

	var user models.User
	err := db.Omit("password").Preload("Posts", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at DESC, id DESC")
	}).First(&user, id).Error
	if err != nil {
		return nil, classify(err, "User", id)
	}

	if err := attachLikes(ctx, r.db, user.Posts); err != nil {
		return nil, classify(err, "User", id)
	}
	if user.Posts == nil {
		user.Posts = []models.Post{}
	}

	user.Followers = []uint{}
	user.Followings = []uint{}
	user.Bookmarks = []uint{}
	if err := db.Model(&models.Follow{}).Where("following_id = ?", id).Order("created_at ASC").Pluck("follower_id", &user.Followers).Error; err != nil {
		return nil, classify(err, "User", id)
	}
	if err := db.Model(&models.Follow{}).Where("follower_id = ?", id).Order("created_at ASC").Pluck("following_id", &user.Followings).Error; err != nil {
		return nil, classify(err, "User", id)
	}
	if err := db.Model(&models.Bookmark{}).Where("user_id = ?", id).Order("created_at ASC").Pluck("post_id", &user.Bookmarks).Error; err != nil {
		return nil, classify(err, "User", id)
	}
	return &user, nil
}
