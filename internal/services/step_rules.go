package services

import (
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/you/mimora/domain"
)

var upiPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)

// validate is shared; validator.Validate caches struct metadata and is safe
// for concurrent use
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("upi", func(fl validator.FieldLevel) bool {
		return upiPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("pastdate", func(fl validator.FieldLevel) bool {
		d, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil && d.Before(time.Now())
	})
	return v
}

// ValidateTarget checks a phone number (E.164) or email address
func ValidateTarget(channel domain.Channel, target string) error {
	switch channel {
	case domain.ChannelPhone:
		if err := validate.Var(target, "required,e164"); err != nil {
			return &domain.ValidationError{Field: "phone", Reason: "must be in E.164 format"}
		}
	case domain.ChannelEmail:
		if err := validate.Var(target, "required,email"); err != nil {
			return &domain.ValidationError{Field: "email", Reason: "invalid email address"}
		}
	default:
		return domain.NewValidationError("channel")
	}
	return nil
}

// ValidateCode checks the 6-digit code format
func ValidateCode(code string) error {
	if err := validate.Var(code, "len=6,numeric"); err != nil {
		return &domain.ValidationError{Field: "code", Reason: "must be exactly 6 digits"}
	}
	return nil
}

type personalDetails struct {
	FullName   string `json:"fullName" validate:"required,min=2,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,e164"`
	Birthday   string `json:"birthday" validate:"required,datetime=2006-01-02,pastdate"`
	Gender     string `json:"gender" validate:"required,oneof=female male non-binary other"`
	Experience string `json:"experience" validate:"required"`
	Bio        string `json:"bio" validate:"required,max=1000"`
}

type bookingModes struct {
	Modes           []string `json:"modes" validate:"required,min=1,unique,dive,oneof=home studio"`
	StudioAddress   string   `json:"studioAddress"`
	ServiceRadiusKm float64  `json:"serviceRadiusKm" validate:"gte=0"`
}

type portfolio struct {
	Portfolio []string `json:"portfolio" validate:"required,min=1,dive,uri"`
}

type bankDetails struct {
	AccountNumber        string `json:"accountNumber"`
	ConfirmAccountNumber string `json:"confirmAccountNumber"`
	BankName             string `json:"bankName"`
	IFSCCode             string `json:"ifscCode"`
	UPIID                string `json:"upiId"`
}

type bankAccount struct {
	AccountNumber        string `json:"accountNumber" validate:"required,numeric"`
	ConfirmAccountNumber string `json:"confirmAccountNumber" validate:"required,eqfield=AccountNumber"`
	BankName             string `json:"bankName" validate:"required"`
	IFSCCode             string `json:"ifscCode" validate:"required"`
}

type upiAccount struct {
	UPIID string `json:"upiId" validate:"required,upi"`
}

// ContactProof lists the verified targets per channel and which channel
// the artist is currently verifying with
type ContactProof struct {
	Active   domain.Channel
	Verified map[domain.Channel][]string
}

func (p ContactProof) has(channel domain.Channel, target string) bool {
	for _, v := range p.Verified[channel] {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// ValidateStep runs the rule set of one onboarding step against its draft
// fields and returns the first failing field as a *domain.ValidationError
func ValidateStep(step domain.StepID, fields domain.Fields, proof ContactProof) error {
	switch step {
	case domain.StepPersonalDetails:
		var pd personalDetails
		if err := decodeFields(fields, &pd); err != nil {
			return err
		}
		if err := firstFieldError(validate.Struct(pd)); err != nil {
			return err
		}
		return checkContact(pd, proof)

	case domain.StepBookingModes:
		var bm bookingModes
		if err := decodeFields(fields, &bm); err != nil {
			return err
		}
		if err := firstFieldError(validate.Struct(bm)); err != nil {
			return err
		}
		for _, m := range bm.Modes {
			if m == "studio" && strings.TrimSpace(bm.StudioAddress) == "" {
				return &domain.ValidationError{Field: "studioAddress", Reason: "required for studio bookings"}
			}
			if m == "home" && bm.ServiceRadiusKm <= 0 {
				return &domain.ValidationError{Field: "serviceRadiusKm", Reason: "required for home visits"}
			}
		}
		return nil

	case domain.StepPortfolio:
		var p portfolio
		if err := decodeFields(fields, &p); err != nil {
			return err
		}
		return firstFieldError(validate.Struct(p))

	case domain.StepBankDetails:
		var bd bankDetails
		if err := decodeFields(fields, &bd); err != nil {
			return err
		}
		hasBank := bd.AccountNumber != "" || bd.ConfirmAccountNumber != ""
		if !hasBank && bd.UPIID == "" {
			return &domain.ValidationError{Field: "accountNumber", Reason: "bank account or UPI id required"}
		}
		// either payout method on its own is enough
		var upiErr error
		if bd.UPIID != "" {
			if upiErr = firstFieldError(validate.Struct(upiAccount{UPIID: bd.UPIID})); upiErr == nil {
				return nil
			}
		}
		if !hasBank {
			return upiErr
		}
		return firstFieldError(validate.Struct(bankAccount{
			AccountNumber:        bd.AccountNumber,
			ConfirmAccountNumber: bd.ConfirmAccountNumber,
			BankName:             bd.BankName,
			IFSCCode:             bd.IFSCCode,
		}))

	default:
		return domain.ErrUnknownStep
	}
}

func checkContact(pd personalDetails, proof ContactProof) error {
	active := proof.Active
	if active == "" {
		active = domain.ChannelPhone
	}
	target, field := pd.Phone, "phone"
	if active == domain.ChannelEmail {
		target, field = pd.Email, "email"
	}
	if !proof.has(active, target) {
		return &domain.ValidationError{Field: field, Reason: "not verified"}
	}
	return nil
}

// decodeFields maps free-form draft fields onto a typed rule struct
func decodeFields(fields domain.Fields, out any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return &domain.ValidationError{Field: "draft", Reason: err.Error()}
	}
	if err := json.Unmarshal(data, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &domain.ValidationError{Field: typeErr.Field, Reason: "wrong type"}
		}
		return &domain.ValidationError{Field: "draft", Reason: err.Error()}
	}
	return nil
}

func firstFieldError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		// dive errors report the slice element, e.g. portfolio[0]
		if i := strings.IndexByte(field, '['); i > 0 {
			field = field[:i]
		}
		return &domain.ValidationError{Field: field, Reason: fe.Tag()}
	}
	return &domain.ValidationError{Field: "draft", Reason: err.Error()}
}
