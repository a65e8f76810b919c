package payment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

var (
	methodTag  = "payment_method"
	methodText = "{0} must be one of especes, cheque, virement, carte, mobile_money"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(methodTag, methodValidation)
	core.RegisterCustomTranslation(validate, translator, methodTag, methodText)
}

func methodValidation(fl validator.FieldLevel) bool {
	return lo.Contains(Methods, fl.Field().String())
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.Clean()
	return validate.Struct(np)
}

func (up *UpdatePayment) Validate(validate *validator.Validate) error {
	up.Clean()
	return validate.Struct(up)
}

func (oc *OpenCase) Validate(validate *validator.Validate) error {
	oc.Clean()
	return validate.Struct(oc)
}

func (cc *CloseCase) Validate(validate *validator.Validate) error {
	cc.Clean()
	return validate.Struct(cc)
}
