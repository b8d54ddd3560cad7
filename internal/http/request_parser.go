// Package http provides HTTP server and handler implementations.
//
// This file implements request body parsing for the internal API. Bodies may
// be JSON or form-encoded; both end up as trimmed string values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/services"
)

const maxBodyBytes = 64 << 10

// RequestBodyParser reads the body once and serves values from either the
// JSON object or the form it contained.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Has reports whether key was present with a non-null value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		return ok && v != nil
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns the trimmed, sanitized value of key, or "".
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims and strips control characters other than tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParsePaymentInput reads paid, amount and paid_on. paid defaults to true;
// amount and paid_on are optional. paid_on is a calendar date in loc.
func ParsePaymentInput(p *RequestBodyParser, loc *time.Location) (services.PaymentInput, error) {
	in := services.PaymentInput{Paid: true}

	if p.Has("paid") {
		paid, err := strconv.ParseBool(p.Get("paid"))
		if err != nil {
			return services.PaymentInput{}, fmt.Errorf("invalid paid flag %q", p.Get("paid"))
		}
		in.Paid = paid
	}

	if v := p.Get("amount"); v != "" {
		amount, err := core.ParseMoney(v)
		if err != nil {
			return services.PaymentInput{}, fmt.Errorf("invalid amount %q: %w", v, err)
		}
		in.Amount = &amount
	}

	if v := p.Get("paid_on"); v != "" {
		paidOn, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return services.PaymentInput{}, fmt.Errorf("invalid paid_on %q: expected YYYY-MM-DD", v)
		}
		in.PaidOn = paidOn
	}

	return in, nil
}

// DecodeDebtInput decodes a JSON debt body, rejecting unknown fields.
func DecodeDebtInput(r *http.Request) (services.DebtInput, error) {
	var in services.DebtInput
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return services.DebtInput{}, errors.New("empty request body")
		}
		return services.DebtInput{}, fmt.Errorf("invalid debt body: %w", err)
	}
	return in, nil
}
