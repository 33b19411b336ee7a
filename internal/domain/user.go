package domain

// Profile is the editable part of a user's account. Image is an opaque,
// publicly resolvable URL produced by the upload service.
type Profile struct {
	UserID string `json:"id"`
	Name   string `json:"name" validate:"omitempty,max=100"`
	Email  string `json:"email" validate:"omitempty,email"`
	Image  string `json:"image,omitempty" validate:"omitempty,url"`
	Phone  string `json:"phone,omitempty" validate:"omitempty,e164"`
}
