package cli

import (
	"errors"
	"fmt"
	"io"
	"net/mail"
	"sort"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/validator"
)

// decodeStrict decodes a single YAML document, rejecting unknown keys.
func decodeStrict(r io.Reader, dst any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	return nil
}

// parseSimulation reads a simulation template and runs the binding
// validation the HTTP create endpoint applies. Question level checks are left
// to SimulationService.Create.
func parseSimulation(r io.Reader) (*model.CreateSimulationRequest, error) {
	req := &model.CreateSimulationRequest{}
	if err := decodeStrict(r, req); err != nil {
		return nil, fmt.Errorf("decode simulation: %w", err)
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

// userRecord is one entry of a users import file.
type userRecord struct {
	Email   string     `yaml:"email"`
	Name    string     `yaml:"name"`
	Role    model.Role `yaml:"role"`
	ClassID *uuid.UUID `yaml:"class_id"`
	Active  *bool      `yaml:"active"`
}

type usersFile struct {
	Users []userRecord `yaml:"users"`
}

// parseUsers reads a users import file. Accounts are active unless the
// record says otherwise.
func parseUsers(r io.Reader) ([]*model.User, error) {
	var f usersFile
	if err := decodeStrict(r, &f); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	if len(f.Users) == 0 {
		return nil, errors.New("no users in file")
	}

	seen := make(map[string]int, len(f.Users))
	out := make([]*model.User, 0, len(f.Users))
	for i, rec := range f.Users {
		email := strings.ToLower(strings.TrimSpace(rec.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("users[%d]: invalid email %q", i, rec.Email)
		}
		if prev, dup := seen[email]; dup {
			return nil, fmt.Errorf("users[%d]: email %s already listed at users[%d]", i, email, prev)
		}
		seen[email] = i

		switch rec.Role {
		case model.RoleStudent, model.RoleCollaborator, model.RoleAdmin:
		default:
			return nil, fmt.Errorf("users[%d]: unknown role %q", i, rec.Role)
		}
		if strings.TrimSpace(rec.Name) == "" {
			return nil, fmt.Errorf("users[%d]: name is required", i)
		}

		active := true
		if rec.Active != nil {
			active = *rec.Active
		}
		out = append(out, &model.User{
			Email:   email,
			Name:    strings.TrimSpace(rec.Name),
			Role:    rec.Role,
			ClassID: rec.ClassID,
			Active:  active,
		})
	}
	return out, nil
}

func validate(v any) error {
	validator.Setup()
	err := binding.Validator.ValidateStruct(v)
	if err == nil {
		return nil
	}
	fields := validator.TranslateErrors(err)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("invalid template")
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s: %s", name, fields[name])
	}
	return errors.New(b.String())
}
