package handlers

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"sales-dashboard/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type skuQuery struct {
	SKU string `json:"sku" validate:"required,max=200"`
}

type chartQuery struct {
	SKU    string `json:"sku" validate:"required,max=200"`
	X      string `json:"x" validate:"max=64"`
	Y      string `json:"y" validate:"max=64"`
	Title  string `json:"title" validate:"max=120"`
	Prefix bool   `json:"prefix"`
	// Width and Height size the PNG rendering in pixels.
	Width  int `json:"width" validate:"omitempty,min=200,max=4000"`
	Height int `json:"height" validate:"omitempty,min=150,max=3000"`
}

type metricsQuery struct {
	SKU  string `json:"sku" validate:"required,max=200"`
	Year int    `json:"year" validate:"omitempty,min=1900,max=2100"`
}

type topQuery struct {
	Year  int `json:"year" validate:"omitempty,min=1900,max=2100"`
	Limit int `json:"limit" validate:"omitempty,min=1,max=500"`
}

// dashboardSignals are the client-side signals datastar sends with every
// SSE request.
type dashboardSignals struct {
	SKU    string `json:"sku" validate:"max=200"`
	YCol   string `json:"ycol" validate:"max=64"`
	Title  string `json:"title" validate:"max=120"`
	Prefix bool   `json:"prefix"`
	Year   int    `json:"year" validate:"omitempty,min=1900,max=2100"`
}

func parseSKUQuery(q url.Values) (skuQuery, error) {
	p := skuQuery{SKU: strings.TrimSpace(q.Get("sku"))}
	return p, check(p)
}

func parseChartQuery(q url.Values) (chartQuery, error) {
	p := chartQuery{
		SKU:   strings.TrimSpace(q.Get("sku")),
		X:     q.Get("x"),
		Y:     q.Get("y"),
		Title: q.Get("title"),
	}
	var err error
	if p.Prefix, err = boolParam(q, "prefix"); err != nil {
		return p, err
	}
	if p.Width, err = intParam(q, "width"); err != nil {
		return p, err
	}
	if p.Height, err = intParam(q, "height"); err != nil {
		return p, err
	}
	return p, check(p)
}

func parseMetricsQuery(q url.Values) (metricsQuery, error) {
	p := metricsQuery{SKU: strings.TrimSpace(q.Get("sku"))}
	var err error
	if p.Year, err = intParam(q, "year"); err != nil {
		return p, err
	}
	return p, check(p)
}

func parseTopQuery(q url.Values) (topQuery, error) {
	var p topQuery
	var err error
	if p.Year, err = intParam(q, "year"); err != nil {
		return p, err
	}
	if p.Limit, err = intParam(q, "limit"); err != nil {
		return p, err
	}
	return p, check(p)
}

func intParam(q url.Values, key string) (int, error) {
	s := q.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.BadRequestWrap(err, fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}

func boolParam(q url.Values, key string) (bool, error) {
	s := q.Get(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.BadRequestWrap(err, fmt.Sprintf("%s must be true or false", key))
	}
	return b, nil
}

// check runs the struct's validate tags and folds the failures into a
// single validation error.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	appErr := errors.ValidationWrap(err, "invalid request parameters")
	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
		}
		appErr.Details = strings.Join(msgs, "; ")
	}
	return appErr
}
