package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ShovalB85/RasApp/internal/config"
	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/events"
	"github.com/ShovalB85/RasApp/internal/repo"
)

// LoginResult tells the client what to do next. Person is set only when
// the credentials were accepted.
type LoginResult struct {
	Person             *domain.Person `json:"person,omitempty"`
	PersonID           string         `json:"person_id"`
	NeedsPassword      bool           `json:"needs_password,omitempty"`
	NeedsPasswordEntry bool           `json:"needs_password_entry,omitempty"`
}

var errBadCredentials = domain.Unauthenticated("invalid personal number or password")

// Login checks a personal number and password. A person without a password
// must set one first; an empty password asks the client to prompt for it.
func (e Engine) Login(ctx context.Context, personalNumber, password string) (LoginResult, error) {
	var out LoginResult
	err := e.Store.View(ctx, func(tx repo.Tx) error {
		p, err := tx.GetPersonByPersonalNumber(ctx, strings.TrimSpace(personalNumber))
		if errors.Is(err, repo.ErrNotFound) {
			return errBadCredentials
		}
		if err != nil {
			return err
		}
		out.PersonID = p.ID
		if p.NeedsPassword() {
			out.NeedsPassword = true
			return nil
		}
		if password == "" {
			out.NeedsPasswordEntry = true
			return nil
		}
		if bcrypt.CompareHashAndPassword([]byte(*p.PasswordHash), []byte(password)) != nil {
			return errBadCredentials
		}
		p, err = withAssigned(ctx, tx, p)
		if err != nil {
			return err
		}
		out.Person = &p
		return nil
	})
	if err != nil {
		e.logger().WithField("op", "account.login").WithError(err).Info("login rejected")
	}
	return out, err
}

func (e Engine) hashPassword(password string) (string, error) {
	if minLen := e.cfg().Auth.PasswordMinLength; len(password) < minLen {
		return "", domain.InvalidArgument("password must be at least %d characters", minLen)
	}
	cost := e.cfg().Auth.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SetInitialPassword sets the first password of a person who has none.
func (e Engine) SetInitialPassword(ctx context.Context, personalNumber, password string) (domain.Person, error) {
	var out domain.Person
	err := e.Store.InTx(ctx, func(tx repo.Tx) error {
		p, err := tx.GetPersonByPersonalNumber(ctx, strings.TrimSpace(personalNumber))
		if errors.Is(err, repo.ErrNotFound) {
			return errBadCredentials
		}
		if err != nil {
			return err
		}
		if !p.NeedsPassword() {
			return domain.Conflict("password already set")
		}
		hash, err := e.hashPassword(password)
		if err != nil {
			return err
		}
		p.PasswordHash = &hash
		if err := tx.UpdatePerson(ctx, p); err != nil {
			return err
		}
		out, err = withAssigned(ctx, tx, p)
		if err != nil {
			return err
		}
		return e.emit(ctx, tx, events.PasswordSet, "", "person", p.ID, p.ID, events.Payload{"initial": true})
	})
	return out, err
}

func (e Engine) ChangePassword(ctx context.Context, actorID, current, next string) error {
	return e.mutate(ctx, "account.change_password", actorID, nil, func(tx repo.Tx, actor domain.Person) error {
		if actor.NeedsPassword() {
			return domain.InvalidArgument("no password set; set an initial password first")
		}
		if bcrypt.CompareHashAndPassword([]byte(*actor.PasswordHash), []byte(current)) != nil {
			return errBadCredentials
		}
		hash, err := e.hashPassword(next)
		if err != nil {
			return err
		}
		actor.PasswordHash = &hash
		if err := tx.UpdatePerson(ctx, actor); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.PasswordSet, "", "person", actor.ID, actor.ID, nil)
	})
}

// Me returns the actor with their assigned items.
func (e Engine) Me(ctx context.Context, actorID string) (domain.Person, error) {
	var out domain.Person
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		var err error
		out, err = withAssigned(ctx, tx, actor)
		return err
	})
	return out, err
}

// EnsurePrimaryAdmin creates the seed framework and the primary admin when
// no primary admin exists yet. An existing person with the seed personal
// number is promoted instead.
func (e Engine) EnsurePrimaryAdmin(ctx context.Context, seed config.Seed) (domain.Person, bool, error) {
	var (
		out     domain.Person
		created bool
	)
	err := e.Store.InTx(ctx, func(tx repo.Tx) error {
		admins, err := tx.ListPeople(ctx, repo.PersonFilter{Roles: []domain.Role{domain.RoleAdmin}})
		if err != nil {
			return err
		}
		for _, a := range admins {
			if a.IsPrimaryAdmin {
				out = a
				return nil
			}
		}

		frameworkID, err := e.seedFramework(ctx, tx, seed.FrameworkName)
		if err != nil {
			return err
		}
		p, err := tx.GetPersonByPersonalNumber(ctx, seed.AdminPersonalNumber)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			p = domain.Person{
				ID:             newID(),
				Name:           seed.AdminName,
				PersonalNumber: seed.AdminPersonalNumber,
				Role:           domain.RoleAdmin,
				FrameworkID:    frameworkID,
				IsPrimaryAdmin: true,
				CreatedAt:      e.stamp(),
			}
			if seed.AdminPassword != "" {
				hash, err := e.hashPassword(seed.AdminPassword)
				if err != nil {
					return err
				}
				p.PasswordHash = &hash
			}
			if err := tx.InsertPerson(ctx, p); err != nil {
				return err
			}
			if err := e.emit(ctx, tx, events.PersonAdded, "", "person", p.ID, SystemActor, events.Payload{"framework_id": frameworkID, "role": string(p.Role), "primary": true}); err != nil {
				return err
			}
			if err := e.applyRoleChanged(ctx, tx, SystemActor, RoleChanged{PersonID: p.ID, To: domain.RoleAdmin}); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			from := p.Role
			p.Role = domain.RoleAdmin
			p.IsPrimaryAdmin = true
			if err := tx.UpdatePerson(ctx, p); err != nil {
				return err
			}
			if from != domain.RoleAdmin {
				if err := e.applyRoleChanged(ctx, tx, SystemActor, RoleChanged{PersonID: p.ID, From: from, To: domain.RoleAdmin}); err != nil {
					return err
				}
			}
		}
		out = p
		created = true
		return nil
	})
	if err == nil && created {
		e.logger().WithFields(logrus.Fields{"op": "seed.primary_admin", "person": out.ID}).Info("primary admin ensured")
	}
	return out, created, err
}

func (e Engine) seedFramework(ctx context.Context, tx repo.Tx, name string) (string, error) {
	frameworks, err := tx.ListFrameworks(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range frameworks {
		if strings.EqualFold(f.Name, name) {
			return f.ID, nil
		}
	}
	f := domain.Framework{ID: newID(), Name: name, CreatedAt: e.stamp()}
	if err := tx.InsertFramework(ctx, f); err != nil {
		return "", err
	}
	return f.ID, e.emit(ctx, tx, events.FrameworkCreated, "", "framework", f.ID, SystemActor, events.Payload{"name": name})
}
