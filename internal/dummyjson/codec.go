package dummyjson

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/crm-dashboard/internal/domain/auth"
)

// decodeSession reads a login response. Older API versions name the access
// token "token".
func decodeSession(d *jx.Decoder, s *auth.Session) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "accessToken", "token":
			v, err := d.Str()
			s.Token = v
			return errors.Wrapf(err, "decode %q", key)
		case "refreshToken":
			v, err := d.Str()
			s.RefreshToken = v
			return errors.Wrapf(err, "decode %q", key)
		default:
			ok, err := decodeUserField(d, key, &s.User)
			if err != nil || ok {
				return err
			}
			return d.Skip()
		}
	})
}

func decodeUser(d *jx.Decoder, u *auth.User) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		ok, err := decodeUserField(d, key, u)
		if err != nil || ok {
			return err
		}
		return d.Skip()
	})
}

func decodeUserField(d *jx.Decoder, key string, u *auth.User) (bool, error) {
	var err error
	switch key {
	case "id":
		u.ID, err = d.Int64()
	case "username":
		u.Username, err = d.Str()
	case "email":
		u.Email, err = d.Str()
	case "firstName":
		u.FirstName, err = d.Str()
	case "lastName":
		u.LastName, err = d.Str()
	case "image":
		u.Image, err = d.Str()
	default:
		return false, nil
	}
	return true, errors.Wrapf(err, "decode %q", key)
}

// errorMessage extracts the "message" field of an error body, falling back to
// the raw body.
func errorMessage(data []byte) string {
	var msg string
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "message" || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		msg = v
		return err
	})
	if err != nil || msg == "" {
		const limit = 200
		if len(data) > limit {
			data = data[:limit]
		}
		return string(data)
	}
	return msg
}
