package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	FailedField string
	Tag         string
	Value       string
	Kind        reflect.Kind
}

var validate = validator.New()

func init() {
	// Report fields by their JSON name so messages match the request body
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Money fields are validated as numbers (gte=0 etc.)
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		if d, ok := v.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// Money carries at most two decimal places, matching the decimal(14,2) columns
	validate.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		var d decimal.Decimal
		switch v := fl.Field().Interface().(type) {
		case decimal.Decimal:
			d = v
		case float64:
			d = decimal.NewFromFloat(v)
		default:
			return false
		}
		return d.Equal(d.Round(2))
	})

	// Register custom validation for UUID
	validate.RegisterValidation("uuid_required", func(fl validator.FieldLevel) bool {
		if id, ok := fl.Field().Interface().(uuid.UUID); ok {
			return id != uuid.Nil
		}
		return false
	})
}

func ValidateStruct(data interface{}) []*ErrorResponse {
	var errors []*ErrorResponse
	err := validate.Struct(data)
	if err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []*ErrorResponse{{Tag: "invalid", Value: err.Error()}}
		}
		for _, err := range verrs {
			var element ErrorResponse
			element.FailedField = fieldPath(err.Namespace())
			element.Tag = err.Tag()
			element.Value = err.Param()
			element.Kind = err.Kind()
			errors = append(errors, &element)
		}
	}
	return errors
}

// fieldPath drops the root struct name: "CreateSaleRequest.products[0].quantity" -> "products[0].quantity"
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
