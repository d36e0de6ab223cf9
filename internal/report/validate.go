package report

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report field names the way clients send them.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct converts validator failures into a domain.ValidationError
// listing the offending fields.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &domain.ValidationError{}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &domain.ValidationError{Fields: fields}
}

// normalizeFilter trims text criteria and canonicalizes the status.
func normalizeFilter(f domain.ReportFilter) (domain.ReportFilter, error) {
	var fields []string
	f.ReportType = trim(f.ReportType)
	f.Location = trim(f.Location)
	if f.Status != "" {
		st, err := domain.ParseStatus(string(f.Status))
		if err != nil {
			fields = append(fields, "status")
		}
		f.Status = st
	}
	if f.Limit < 0 {
		fields = append(fields, "limit")
	}
	if f.Offset < 0 {
		fields = append(fields, "offset")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		fields = append(fields, "from", "to")
	}
	if len(fields) > 0 {
		return f, &domain.ValidationError{Fields: fields}
	}
	return f, nil
}

func isDomainErr(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrStore)
}

func trim(s string) string {
	return strings.TrimSpace(s)
}
