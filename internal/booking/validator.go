package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const (
	// MaxBodyBytes caps the size of a booking submission.
	MaxBodyBytes = 64 << 10
	// MaxAppointments caps how many slots one submission may book.
	MaxAppointments = 20
)

// Field aliases. The booking form posts contact details under a
// "contact[...]" namespace; flat names are accepted as well.
var (
	firstNameKeys = []string{"contact[first_name]", "contact[firstName]", "firstName", "first_name"}
	lastNameKeys  = []string{"contact[last_name]", "contact[lastName]", "lastName", "last_name"}
	phoneKeys     = []string{"contact[phone]", "phone"}
	emailKeys     = []string{"contact[email]", "email"}
	garmentsKeys  = []string{"contact[garments]", "garments"}
	eventInfoKeys = []string{"contact[event_info]", "contact[eventInfo]", "eventInfo", "event_info"}
	tokenKeys     = []string{"g-recaptcha-response", "recaptchaToken", "captchaToken"}
	apptKeys      = []string{"appointments", "appointments[]"}
)

// fieldSource abstracts over JSON and form bodies.
type fieldSource interface {
	value(key string) (string, bool)
	values(key string) ([]string, bool)
}

// DecodeRequest reads the body of r into a Request. It only checks that
// the payload is parseable structured data; field rules are applied by
// the Validate* functions.
func DecodeRequest(r *http.Request) (*Request, error) {
	if r.Body == nil {
		return nil, &ValidationError{Check: CheckPayload, Reason: "empty request body"}
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, &ValidationError{Check: CheckPayload, Reason: "unreadable request body"}
	}
	if len(body) > MaxBodyBytes {
		return nil, &ValidationError{Check: CheckPayload, Reason: "request body too large"}
	}

	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, &ValidationError{Check: CheckPayload, Reason: "invalid content type"}
		}
		mediaType = mt
	}

	var src fieldSource
	switch mediaType {
	case "", "application/json", "text/plain":
		src, err = newJSONSource(body)
	case "application/x-www-form-urlencoded":
		src, err = newURLFormSource(body)
	case "multipart/form-data":
		src, err = newMultipartSource(r, body)
	default:
		return nil, &ValidationError{Check: CheckPayload, Reason: "unsupported content type " + mediaType}
	}
	if err != nil {
		return nil, &ValidationError{Check: CheckPayload, Reason: "invalid request body"}
	}

	return &Request{
		Contact: Contact{
			FirstName: firstValue(src, firstNameKeys),
			LastName:  firstValue(src, lastNameKeys),
			Phone:     firstValue(src, phoneKeys),
			Email:     firstValue(src, emailKeys),
			Garments:  firstValue(src, garmentsKeys),
			EventInfo: firstValue(src, eventInfoKeys),
		},
		VerificationToken: firstValue(src, tokenKeys),
		Appointments:      appointmentValues(src),
	}, nil
}

// ValidateToken checks that a verification token was supplied.
func ValidateToken(req *Request) error {
	if strings.TrimSpace(req.VerificationToken) == "" {
		return &ValidationError{Check: CheckToken, Reason: "missing verification token"}
	}
	return nil
}

// ValidateContact checks the required contact fields. An absent key and a
// blank value are the same failure.
func ValidateContact(req *Request) error {
	var missing []string
	if req.Contact.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if req.Contact.LastName == "" {
		missing = append(missing, "lastName")
	}
	if req.Contact.Phone == "" {
		missing = append(missing, "phone")
	}
	if req.Contact.Email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return &ValidationError{Check: CheckContact, Reason: "missing required fields", Fields: missing}
	}
	return nil
}

// ValidateAppointments checks that between one and MaxAppointments
// appointments were selected.
func ValidateAppointments(req *Request) error {
	switch n := len(req.Appointments); {
	case n == 0:
		return &ValidationError{Check: CheckAppointments, Reason: "no appointment selected"}
	case n > MaxAppointments:
		return &ValidationError{Check: CheckAppointments, Reason: fmt.Sprintf("too many appointments (max %d)", MaxAppointments)}
	}
	return nil
}

func firstValue(src fieldSource, keys []string) string {
	for _, key := range keys {
		if v, ok := src.value(key); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func appointmentValues(src fieldSource) []string {
	var out []string
	for _, key := range apptKeys {
		vals, ok := src.values(key)
		if !ok {
			continue
		}
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// splitBracketKey splits "contact[email]" into ("contact", "email").
func splitBracketKey(key string) (outer, inner string, ok bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	inner = key[open+1 : len(key)-1]
	if inner == "" {
		return "", "", false
	}
	return key[:open], inner, true
}

type jsonSource map[string]any

func newJSONSource(body []byte) (jsonSource, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("booking: body is not an object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("booking: unexpected data after object")
	}
	return jsonSource(doc), nil
}

func (s jsonSource) lookup(key string) (any, bool) {
	if v, ok := s[key]; ok {
		return v, true
	}
	if outer, inner, ok := splitBracketKey(key); ok {
		if nested, ok := s[outer].(map[string]any); ok {
			v, ok := nested[inner]
			return v, ok
		}
	}
	return nil, false
}

func (s jsonSource) value(key string) (string, bool) {
	v, ok := s.lookup(key)
	if !ok {
		return "", false
	}
	return scalarString(v)
}

func (s jsonSource) values(key string) ([]string, bool) {
	v, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	switch typed := v.(type) {
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if str, ok := scalarString(item); ok {
				out = append(out, str)
			}
		}
		return out, true
	default:
		if str, ok := scalarString(typed); ok {
			return []string{str}, true
		}
	}
	return nil, false
}

func scalarString(v any) (string, bool) {
	switch typed := v.(type) {
	case string:
		return typed, true
	case json.Number:
		return typed.String(), true
	case bool:
		return fmt.Sprint(typed), true
	default:
		return "", false
	}
}

type formSource url.Values

func newURLFormSource(body []byte) (formSource, error) {
	vals, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	return formSource(vals), nil
}

func newMultipartSource(r *http.Request, body []byte) (formSource, error) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, errors.New("booking: multipart boundary missing")
	}
	form, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	defer form.RemoveAll()
	return formSource(form.Value), nil
}

func (s formSource) value(key string) (string, bool) {
	vals, ok := s[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

func (s formSource) values(key string) ([]string, bool) {
	vals, ok := s[key]
	return vals, ok
}
