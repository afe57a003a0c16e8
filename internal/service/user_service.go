package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"pixelgram/internal/auth"
	"pixelgram/internal/cache"
	"pixelgram/internal/middleware"
	"pixelgram/internal/models"
	"pixelgram/internal/notifications"
	"pixelgram/internal/observability"
	"pixelgram/internal/repository"
	"pixelgram/internal/validation"
)

type UserService struct {
	users        repository.UserRepository
	follows      repository.FollowRepository
	tokens       *auth.TokenManager
	media        MediaStore
	janitor      mediaJanitor
	cache        *cache.Cache
	notifier     *notifications.Notifier
	store        StoreOptions
	passwordCost int
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type EditProfileInput struct {
	UserID uint
	Bio    string
	Gender string
	Avatar *UploadInput
}

// Session is the outcome of a successful login.
type Session struct {
	User      *models.User
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

func NewUserService(
	users repository.UserRepository,
	follows repository.FollowRepository,
	maintenance repository.MaintenanceRepository,
	tokens *auth.TokenManager,
	media MediaStore,
	profileCache *cache.Cache,
	notifier *notifications.Notifier,
	store StoreOptions,
) *UserService {
	return &UserService{
		users:        users,
		follows:      follows,
		tokens:       tokens,
		media:        media,
		janitor:      mediaJanitor{media: media, refs: maintenance, store: store},
		cache:        profileCache,
		notifier:     notifier,
		store:        store,
		passwordCost: auth.PasswordCost,
	}
}

// WithPasswordCost overrides the bcrypt work factor. Tests use the minimum.
func (s *UserService) WithPasswordCost(cost int) *UserService {
	s.passwordCost = cost
	return s
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (user *models.User, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "UserService", "Register", observability.Edge{})
	defer func() { observability.EndSpan(span, err) }()

	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Password == "" {
		return nil, models.NewValidationError("All fields are required")
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	err = s.store.once(ctx, func(ctx context.Context) error {
		existing, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return models.NewConflictError("Email id already exists")
		}
		existing, err = s.users.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if existing != nil {
			return models.NewConflictError("Username already taken")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPasswordWithCost(in.Password, s.passwordCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user = &models.User{Username: username, Email: email, Password: hash}
	err = s.store.once(ctx, func(ctx context.Context) error {
		return s.users.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies the credentials and issues a session token. Unknown email
// and wrong password fail identically.
func (s *UserService) Login(ctx context.Context, email, password string) (session *Session, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "UserService", "Login", observability.Edge{})
	defer func() { observability.EndSpan(span, err) }()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.NewValidationError("All fields are required")
	}

	var user *models.User
	err = s.store.once(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Incorrect email or password")
	}

	ok, err := auth.CheckPassword(user.Password, password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !ok {
		return nil, models.NewUnauthorizedError("Incorrect email or password")
	}

	profile, err := s.GetProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &Session{User: profile, Token: token, TokenID: claims.TokenID, ExpiresAt: claims.ExpiresAt}, nil
}

// Logout revokes the session token until it expires. Revocation is best
// effort: the caller clears the cookie either way.
func (s *UserService) Logout(ctx context.Context, tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}
	if err := s.cache.Revoke(ctx, tokenID, expiresAt); err != nil {
		middleware.Logger.WarnContext(ctx, "token revocation failed", slog.String("error", err.Error()))
	}
}

// GetProfile returns the user with posts and relationship sets, served
// through the profile cache.
func (s *UserService) GetProfile(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.cache.Aside(ctx, cache.UserKey(id), &user, cache.UserProfileTTL, func() error {
		return s.store.once(ctx, func(ctx context.Context) error {
			loaded, err := s.users.GetProfile(ctx, id)
			if err != nil {
				return err
			}
			user = *loaded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EditProfile overwrites only the non-empty fields. A new avatar goes to
// the Media Store first and is removed again if the update fails.
func (s *UserService) EditProfile(ctx context.Context, in EditProfileInput) (user *models.User, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "UserService", "EditProfile",
		observability.Edge{Relation: observability.RelationProfile, ActorID: in.UserID})
	defer func() { observability.EndSpan(span, err) }()

	var changes repository.ProfileChanges
	if in.Bio != "" {
		if err := validation.ValidateBio(in.Bio); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		changes.Bio = &in.Bio
	}
	if in.Gender != "" {
		gender := strings.ToLower(strings.TrimSpace(in.Gender))
		if err := validation.ValidateGender(gender); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		changes.Gender = &gender
	}

	err = s.store.once(ctx, func(ctx context.Context) error {
		ok, err := s.users.Exists(ctx, in.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("User", in.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.Avatar != nil {
		in.Avatar.UserID = in.UserID
		stored, err := s.media.Store(ctx, *in.Avatar)
		if err != nil {
			return nil, err
		}
		changes.ProfilePicture = &stored.URL
	}

	err = s.store.retry(ctx, "user.edit_profile", func(ctx context.Context) error {
		return s.users.UpdateProfile(ctx, in.UserID, changes)
	})
	if err != nil {
		if changes.ProfilePicture != nil {
			s.janitor.release(ctx, *changes.ProfilePicture)
		}
		return nil, err
	}

	s.cache.InvalidateUsers(ctx, in.UserID)
	return s.GetProfile(ctx, in.UserID)
}

// SuggestedUsers lists every other user, newest first.
func (s *UserService) SuggestedUsers(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	err := s.store.once(ctx, func(ctx context.Context) error {
		var err error
		users, err = s.users.ListExcept(ctx, userID, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// FollowOrUnfollow toggles the actor -> target edge. Both directions of
// the relationship change in the same transaction.
func (s *UserService) FollowOrUnfollow(ctx context.Context, actorID, targetID uint) (action models.FollowAction, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "UserService", "FollowOrUnfollow",
		observability.Edge{Relation: observability.RelationFollow, ActorID: actorID, SubjectID: targetID})
	defer func() { observability.EndSpan(span, err) }()

	if actorID == targetID {
		return "", models.NewValidationError("You cannot follow/unfollow yourself")
	}

	err = s.store.once(ctx, func(ctx context.Context) error {
		for _, id := range []uint{actorID, targetID} {
			ok, err := s.users.Exists(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return models.NewNotFoundError("User", id)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	err = s.store.retry(ctx, "follow.toggle", func(ctx context.Context) error {
		var err error
		action, err = s.follows.Toggle(ctx, actorID, targetID)
		return err
	})
	if err != nil {
		return "", err
	}

	observability.RelationshipToggles.WithLabelValues("follow", string(action)).Inc()
	s.cache.InvalidateUsers(ctx, actorID, targetID)
	if action == models.Followed {
		s.notifier.Notify(ctx, targetID, notifications.Event{Type: notifications.EventFollowed, ActorID: actorID})
	}
	return action, nil
}
