package webhook

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
)

var (
	eventTag  = "webhook_event"
	eventText = "unknown event type"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(eventTag, eventValidation)
	core.RegisterCustomTranslation(validate, translator, eventTag, eventText)
}

func eventValidation(fl validator.FieldLevel) bool {
	return outbox.IsKnownEvent(fl.Field().String())
}

func (ns *NewSubscription) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

func (us *UpdateSubscription) Validate(validate *validator.Validate) error {
	us.Clean()
	return validate.Struct(us)
}
