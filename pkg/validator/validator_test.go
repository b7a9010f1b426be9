package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type testPayload struct {
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,phone"`
	Code  string `json:"code" validate:"required,code"`
	Bump  int    `json:"bump" validate:"gte=0"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Email: "alice@example.com",
		Phone: "+1 (555) 010-2000",
		Code:  "K7QX2M9P",
		Bump:  3,
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Email: "invalid",
		Phone: "call me",
		Code:  "no spaces allowed",
		Bump:  -1,
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 4 {
		t.Fatalf("expected 4 validation errors, got %d", len(vErrs))
	}

	foundPhone := false
	for _, v := range vErrs {
		if v.Field == "phone" && v.Tag == "phone" {
			foundPhone = true
		}
	}

	if !foundPhone {
		t.Fatal("expected phone field to be present in validation errors")
	}
}

func TestIsPhone(t *testing.T) {
	valid := []string{"+15550102000", "555-010-2000", "(020) 7946 0018"}
	for _, v := range valid {
		if !IsPhone(v) {
			t.Fatalf("expected %q to be accepted", v)
		}
	}
	invalid := []string{"", "12345", "+1 555 CALL NOW", "1234567890123456789"}
	for _, v := range invalid {
		if IsPhone(v) {
			t.Fatalf("expected %q to be rejected", v)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("waitlist", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "waitlist"
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"waitlist"`
	}

	if err := ValidateStruct(custom{Value: "waitlist"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "other"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}
