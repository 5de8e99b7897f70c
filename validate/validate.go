package validate

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
)

var validate *validator.Validate

var translator ut.Translator

var slugRx = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

func init() {
	validate = validator.New()

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRx.MatchString(fl.Field().String())
	})
	validate.RegisterTranslation("slug", translator,
		func(ut ut.Translator) error {
			return ut.Add("slug", "{0} must be lowercase words separated by dashes", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T("slug", fe.Field())
			return t
		},
	)
}

func Check(val any) error {
	if err := validate.Struct(val); err != nil {

		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		if len(verrors) < 1 {
			return nil
		}

		return errors.New(verrors[0].Translate(translator))
	}

	return nil
}

func GenerateID() string {
	return uuid.NewString()
}

func CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("ID is not in its proper form")
	}
	return nil
}

func CheckIDs(ids []string) error {
	for _, id := range ids {
		if err := CheckID(id); err != nil {
			return fmt.Errorf("%q: %w", id, err)
		}
	}
	return nil
}

// IsSlug reports whether s is usable as a product slug and storage prefix.
func IsSlug(s string) bool {
	return slugRx.MatchString(s)
}
