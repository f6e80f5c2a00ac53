package objstore

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/elementstore/objstore/internal/apierror"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-.]{6,20}$`)

// coerceAndValidate applies C3's per-property coercion and checks to every
// resolved prop against candidate, returning the coerced record and the
// accumulated field errors. An is_array prop has its scalar rule applied to
// each element. Relation existence (step 7 of setObject) is checked
// separately since it needs storage access.
func coerceAndValidate(props map[string]PropDef, candidate Object) (Object, []apierror.FieldError) {
	out := candidate.Clone()
	var errs []apierror.FieldError

	for _, p := range props {
		raw, present := candidate[p.Key]
		if !present || raw == nil {
			if p.Required {
				errs = append(errs, apierror.FieldError{Field: p.Key, Reason: fmt.Sprintf("%s is required", p.Key)})
			}
			continue
		}

		if p.IsArray {
			items, ok := raw.([]any)
			if !ok {
				errs = append(errs, apierror.FieldError{Field: p.Key, Reason: "expected an array"})
				continue
			}
			coerced := make([]any, 0, len(items))
			ok = true
			for i, item := range items {
				c, ferrs := coerceScalar(p, item)
				if len(ferrs) > 0 {
					for _, fe := range ferrs {
						fe.Reason = fmt.Sprintf("[%d] %s", i, fe.Reason)
						errs = append(errs, fe)
					}
					ok = false
					continue
				}
				coerced = append(coerced, c)
			}
			if ok {
				out[p.Key] = coerced
			}
			continue
		}

		coerced, ferrs := coerceScalar(p, raw)
		if len(ferrs) > 0 {
			errs = append(errs, ferrs...)
			continue
		}
		out[p.Key] = coerced

		for _, v := range p.Validators {
			if reason, ok := runValidator(v, coerced); !ok {
				errs = append(errs, apierror.FieldError{Field: p.Key, Reason: reason})
			}
		}
	}

	return out, errs
}

// coerceScalar coerces and validates a single scalar value (or a single
// array element) per p.DataType, returning field errors keyed by p.Key.
func coerceScalar(p PropDef, v any) (any, []apierror.FieldError) {
	field := p.Key
	switch p.DataType {
	case TypeString:
		s, ok := coerceToString(v)
		if !ok {
			return nil, []apierror.FieldError{{Field: field, Reason: "cannot coerce to string"}}
		}
		var errs []apierror.FieldError
		if p.Options.MinLength != nil && len(s) < *p.Options.MinLength {
			errs = append(errs, apierror.FieldError{Field: field, Reason: fmt.Sprintf("%s must be at least %d characters", field, *p.Options.MinLength)})
		}
		if p.Options.MaxLength != nil && len(s) > *p.Options.MaxLength {
			errs = append(errs, apierror.FieldError{Field: field, Reason: fmt.Sprintf("%s must be at most %d characters", field, *p.Options.MaxLength)})
		}
		if p.Options.Pattern != "" {
			re, err := regexp.Compile(p.Options.Pattern)
			if err != nil || !re.MatchString(s) {
				errs = append(errs, apierror.FieldError{Field: field, Reason: fmt.Sprintf("%s does not match pattern", field)})
			}
		}
		if len(p.Options.Values) > 0 && !enumContains(p.Options.Values, s) {
			errs = append(errs, apierror.FieldError{Field: field, Reason: fmt.Sprintf("%s must be one of the allowed values", field)})
		}
		if len(errs) > 0 {
			return nil, errs
		}
		return s, nil

	case TypeInteger:
		n, ok := coerceToInt(v)
		if !ok {
			return nil, []apierror.FieldError{{Field: field, Reason: "cannot coerce to integer"}}
		}
		var errs []apierror.FieldError
		if p.Options.Min != nil && float64(n) < *p.Options.Min {
			errs = append(errs, apierror.FieldError{Field: field, Reason: fmt.Sprintf("%s must be >= %v", field, *p.Options.Min)})
		}
		if p.Options.Max != nil && float64(n) > *p.Options.Max {
			errs = append(errs, apierror.FieldError{Field: field, Reason: fmt.Sprintf("%s must be <= %v", field, *p.Options.Max)})
		}
		if len(p.Options.Values) > 0 && !enumContains(p.Options.Values, n) {
			errs = append(errs, apierror.FieldError{Field: field, Reason: fmt.Sprintf("%s must be one of the allowed values", field)})
		}
		if len(errs) > 0 {
			return nil, errs
		}
		return n, nil

	case TypeFloat:
		f, ok := coerceToFloat(v)
		if !ok {
			return nil, []apierror.FieldError{{Field: field, Reason: "cannot coerce to float"}}
		}
		var errs []apierror.FieldError
		if p.Options.Min != nil && f < *p.Options.Min {
			errs = append(errs, apierror.FieldError{Field: field, Reason: fmt.Sprintf("%s must be >= %v", field, *p.Options.Min)})
		}
		if p.Options.Max != nil && f > *p.Options.Max {
			errs = append(errs, apierror.FieldError{Field: field, Reason: fmt.Sprintf("%s must be <= %v", field, *p.Options.Max)})
		}
		if len(errs) > 0 {
			return nil, errs
		}
		return f, nil

	case TypeBoolean:
		b, ok := coerceToBool(v)
		if !ok {
			return nil, []apierror.FieldError{{Field: field, Reason: "cannot coerce to boolean"}}
		}
		return b, nil

	case TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, []apierror.FieldError{{Field: field, Reason: "expected an object"}}
		}
		return m, nil

	case TypeRelation:
		switch t := v.(type) {
		case string:
			return t, nil
		case []any:
			ids := make([]any, 0, len(t))
			for _, item := range t {
				s, ok := item.(string)
				if !ok {
					return nil, []apierror.FieldError{{Field: field, Reason: "relation list must contain only ids"}}
				}
				ids = append(ids, s)
			}
			return ids, nil
		default:
			return nil, []apierror.FieldError{{Field: field, Reason: "expected an id or list of ids"}}
		}

	case TypeFunction:
		s, ok := v.(string)
		if !ok {
			return nil, []apierror.FieldError{{Field: field, Reason: "expected an opaque string payload"}}
		}
		return s, nil

	default:
		return v, nil
	}
}

func coerceToString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

func coerceToInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		if math.Trunc(t) != t || math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func coerceToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return 0, false
		}
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func coerceToBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case string:
		switch strings.ToLower(t) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

func enumContains(values []any, v any) bool {
	for _, allowed := range values {
		if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", v) {
			return true
		}
	}
	return false
}

// runValidator applies one named composite validator to an already-coerced
// scalar value, returning a field-appropriate reason on failure.
func runValidator(name string, v any) (string, bool) {
	s, _ := v.(string)
	switch name {
	case "email":
		if s == "" {
			return "", true
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return "invalid email address", false
		}
		return "", true
	case "url":
		if s == "" {
			return "", true
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "invalid url", false
		}
		return "", true
	case "phone":
		if s == "" {
			return "", true
		}
		if !phonePattern.MatchString(s) {
			return "invalid phone number", false
		}
		return "", true
	case "json":
		if s == "" {
			return "", true
		}
		if !looksLikeJSON(s) {
			return "invalid json payload", false
		}
		return "", true
	case "date_range":
		if s == "" {
			return "", true
		}
		parts := strings.SplitN(s, "/", 2)
		if len(parts) != 2 {
			return "expected start/end date range", false
		}
		start, err1 := time.Parse(time.RFC3339, parts[0])
		end, err2 := time.Parse(time.RFC3339, parts[1])
		if err1 != nil || err2 != nil || end.Before(start) {
			return "invalid date range", false
		}
		return "", true
	default:
		return "", true
	}
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	switch s[0] {
	case '{', '[', '"':
		return true
	default:
		_, err := strconv.ParseFloat(s, 64)
		return err == nil || s == "true" || s == "false" || s == "null"
	}
}
