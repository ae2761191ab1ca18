// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data:
// query parameters, path values and payment bodies.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

const maxBodyBytes = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, defaulting
// to the month of now. Present but malformed values are rejected.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y <= 0 {
			return MonthParams{}, fmt.Errorf("year %q: %w", v, core.ErrInvalidMonth)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("month %q: %w", v, err)
		}
		params.Month = m
	}
	return params, nil
}

// ParseBoolParam reads a boolean query parameter; absent means def.
func ParseBoolParam(query url.Values, key string, def bool) (bool, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: must be true or false", key, v)
	}
	return b, nil
}

// ParseOptionalInt returns nil when the parameter is absent.
func ParseOptionalInt(query url.Values, key string) (*int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: must be an integer", key, v)
	}
	return &i, nil
}

// ParseNonNegativeFloat returns 0 for an absent parameter. Negative and
// non-finite values are rejected.
func ParseNonNegativeFloat(query url.Values, key string) (float64, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, core.ErrInvalidAmount)
	}
	return f, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// GetInt returns 0 when the key is absent.
func (p *RequestBodyParser) GetInt(key string) (int, error) {
	v := p.Get(key)
	if v == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", key, v)
	}
	return i, nil
}

// ContentType returns the Content-Type header value.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parsePaidAt accepts RFC 3339 timestamps or plain YYYY-MM-DD dates. An
// empty value leaves the payment time to the service.
func parsePaidAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("paidAt %q: %w", s, core.ErrInvalidDay)
	}
	return t, nil
}

// ParseDebtPaymentRequest reads a payment body. Amounts accept a dot or comma
// decimal separator.
func ParseDebtPaymentRequest(r *http.Request, planID, debtID string) (services.DebtPaymentRequest, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return services.DebtPaymentRequest{}, fmt.Errorf("malformed request body: %w", err)
	}

	cents, err := core.ParseDecimalToCents(p.Get("amount"))
	if err != nil {
		return services.DebtPaymentRequest{}, fmt.Errorf("amount %q: %w", p.Get("amount"), err)
	}
	paidAt, err := parsePaidAt(p.Get("paidAt"))
	if err != nil {
		return services.DebtPaymentRequest{}, err
	}
	year, err := p.GetInt("year")
	if err != nil {
		return services.DebtPaymentRequest{}, err
	}
	month, err := p.GetInt("month")
	if err != nil {
		return services.DebtPaymentRequest{}, err
	}

	return services.DebtPaymentRequest{
		PlanID:     planID,
		DebtID:     debtID,
		Amount:     core.Money{Cents: cents},
		PaidAt:     paidAt,
		Year:       year,
		Month:      month,
		Source:     core.PaymentSource(p.Get("source")),
		CardDebtID: p.Get("cardDebtId"),
	}, nil
}
