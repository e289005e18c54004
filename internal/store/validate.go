package store

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// SignupRequest is the payload of POST /signup.
type SignupRequest struct {
	FullName string `json:"full_name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// SigninRequest is the payload of POST /signin.
type SigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func ValidateSignup(req SignupRequest) error {
	return validate.Struct(req)
}

func ValidateSignin(req SigninRequest) error {
	return validate.Struct(req)
}
