package chat

import (
	"context"
	"net/mail"
	"strings"

	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pansan0/saleidia/internal/identity"
	"github.com/pansan0/saleidia/internal/kv"
	"github.com/pansan0/saleidia/internal/models"
	"github.com/pkg/errors"
)

const (
	defaultAvatarURL = "https://images.unsplash.com/photo-1556557286-bf3be5fd9d06?w=150&h=150&fit=crop&crop=face"
	searchLimit      = 20
)

type Profiles struct {
	*core
	provider      identity.Provider
	defaultAvatar string
}

type Registration struct {
	User     models.User       `json:"user"`
	AuthUser identity.AuthUser `json:"authUser"`
}

// Register creates the identity and stores the marketplace profile for it.
func (p *Profiles) Register(ctx context.Context, email, password string, data *models.UserData) (Registration, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" || data == nil {
		return Registration{}, errors.Wrap(apperr.ErrValidation, "missing required fields")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Registration{}, errors.Wrap(apperr.ErrValidation, "invalid email address")
	}
	if strings.TrimSpace(data.Name) == "" {
		return Registration{}, errors.Wrap(apperr.ErrValidation, "name is required")
	}
	switch data.Type {
	case models.UserTypeCreator, models.UserTypeBuyer:
	case "":
		data.Type = models.UserTypeBuyer
	default:
		return Registration{}, errors.Wrapf(apperr.ErrValidation, "unknown user type %q", data.Type)
	}

	authUser, err := p.provider.CreateUser(ctx, email, password, map[string]any{
		"name":        data.Name,
		"type":        data.Type,
		"interests":   data.Interests,
		"personality": data.Personality,
	})
	if err != nil {
		return Registration{}, err
	}

	avatar := p.defaultAvatar
	if avatar == "" {
		avatar = defaultAvatarURL
	}
	interests := data.Interests
	if interests == nil {
		interests = []string{}
	}
	user := models.User{
		ID:          authUser.ID,
		Name:        strings.TrimSpace(data.Name),
		Email:       authUser.Email,
		Type:        data.Type,
		Interests:   interests,
		Personality: data.Personality,
		Avatar:      avatar,
		Rating:      5.0,
		CreatedAt:   p.timestamp(),
	}
	if user.Email == "" {
		user.Email = strings.ToLower(email)
	}
	if err := kv.SetJSON(ctx, p.store, userKey(user.ID), user); err != nil {
		return Registration{}, err
	}
	return Registration{User: user, AuthUser: authUser}, nil
}

func (p *Profiles) Get(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	ok, err := kv.GetJSON(ctx, p.store, userKey(userID), &u)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, errors.Wrapf(apperr.ErrNotFound, "user %s", userID)
	}
	return u, nil
}

// Update applies patch to the caller's own profile.
func (p *Profiles) Update(ctx context.Context, actorID, userID string, patch models.ProfilePatch) (models.User, error) {
	if actorID != userID {
		return models.User{}, errors.Wrap(apperr.ErrUnauthorized, "cannot edit another user's profile")
	}

	unlock := p.locks.lock(userKey(userID))
	defer unlock()

	u, err := p.Get(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.User{}, errors.Wrap(apperr.ErrValidation, "name cannot be empty")
		}
		u.Name = name
	}
	if patch.Bio != nil {
		u.Bio = *patch.Bio
	}
	if patch.Avatar != nil {
		u.Avatar = *patch.Avatar
	}
	if patch.Interests != nil {
		u.Interests = *patch.Interests
	}
	if patch.Personality != nil {
		u.Personality = *patch.Personality
	}
	if err := kv.SetJSON(ctx, p.store, userKey(userID), u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// Search matches query against names and emails, case-insensitively.
func (p *Profiles) Search(ctx context.Context, actorID, query string) ([]models.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []models.User{}
	if q == "" {
		return out, nil
	}

	users, err := kv.ListJSON[models.User](ctx, p.store, kv.Key("user", ""))
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == actorID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Email), q) {
			out = append(out, u)
			if len(out) == searchLimit {
				break
			}
		}
	}
	return out, nil
}

// participant returns the display snapshot of userID, falling back to the bare
// id when the profile is gone.
func (p *Profiles) participant(ctx context.Context, userID string) (models.Participant, error) {
	u, err := p.Get(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Participant{ID: userID, Name: userID}, nil
	}
	if err != nil {
		return models.Participant{}, err
	}
	return models.Participant{ID: u.ID, Name: u.Name, Avatar: u.Avatar}, nil
}
