package service

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"

	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/shared"

	"github.com/go-playground/validator/v10"
)

// MaxNotesLength bounds free-form lesson notes, in characters.
const MaxNotesLength = 10000

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names so clients see the keys they sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func checkFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return shared.NewValidationError(field, "must be a finite number")
	}
	return nil
}

// structError turns the first validator failure into a ValidationError.
func structError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return shared.NewValidationError("", err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return shared.NewValidationError(fe.Field(), "is required")
	case "uuid":
		return shared.NewValidationError(fe.Field(), "must be a UUID")
	case "gte":
		return shared.NewValidationError(fe.Field(), fmt.Sprintf("must be >= %s", fe.Param()))
	default:
		return shared.NewValidationError(fe.Field(), "failed "+fe.Tag())
	}
}

func validatePositionUpdate(u dto.PositionUpdate) error {
	if err := checkFinite("position_seconds", u.PositionSeconds); err != nil {
		return err
	}
	if err := checkFinite("duration_seconds", u.DurationSeconds); err != nil {
		return err
	}
	if err := validate.Struct(u); err != nil {
		return structError(err)
	}
	return nil
}

func validateCompletion(e dto.CompletionEvent) error {
	if err := checkFinite("duration_seconds", e.DurationSeconds); err != nil {
		return err
	}
	if err := validate.Struct(e); err != nil {
		return structError(err)
	}
	return nil
}

// validateKey checks a (user, lesson) key that arrived outside an event struct.
func validateKey(userID, lessonID string) error {
	if err := checkID("user_id", userID); err != nil {
		return err
	}
	return checkID("lesson_id", lessonID)
}

func checkID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return shared.NewValidationError(field, "is required")
	}
	if err := validate.Var(id, "uuid"); err != nil {
		return shared.NewValidationError(field, "must be a UUID")
	}
	return nil
}

func validateNotes(notes string) error {
	if n := utf8.RuneCountInString(notes); n > MaxNotesLength {
		return shared.NewValidationError("notes", fmt.Sprintf("must be at most %d characters", MaxNotesLength))
	}
	return nil
}
