package contact

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/mkravets/contacts-api/internal/api"
)

// ContactRequest is the create/replace payload for a contact.
type ContactRequest struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Birthday  api.Date `json:"birthday"`
}

func (r ContactRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Length(0, 255)),
		validation.Field(&r.Email, validation.Required, is.Email, validation.Length(3, 255)),
		validation.Field(&r.Phone, validation.Length(0, 255)),
		validation.Field(&r.Birthday, validation.By(dateRequired)),
	)
}

func dateRequired(value interface{}) error {
	d, ok := value.(api.Date)
	if !ok || d.IsZero() {
		return errors.New("cannot be blank")
	}
	return nil
}

// ContactPatchRequest updates only the fields present in the payload.
type ContactPatchRequest struct {
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone"`
	Birthday  *api.Date `json:"birthday"`
}

func (r ContactPatchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Length(0, 255)),
		validation.Field(&r.Email, is.Email, validation.Length(3, 255)),
		validation.Field(&r.Phone, validation.Length(0, 255)),
	)
}

func (r ContactPatchRequest) toUpdate() api.ContactUpdate {
	return api.ContactUpdate{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		Birthday:  r.Birthday,
	}
}
