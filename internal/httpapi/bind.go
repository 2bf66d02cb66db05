package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"globalbangla.org/internal/blob"
)

const (
	maxJSONBytes      = 1 << 20
	multipartMemory   = 8 << 20
	featureKeyTag     = "featurekey"
	featureKeyText    = "{0} must start with a letter and contain only letters, digits and underscores"
	requiredTag       = "required"
	requiredFieldText = "{0} is required"
)

var errBodyTooLarge = errors.New("request body too large")

// requestValidator validates decoded bodies and renders the first failure in
// English using the JSON field name.
type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() *requestValidator {
	validate := validator.New()
	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(featureKeyTag, func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" || len(s) > 64 {
			return false
		}
		for i, c := range s {
			letter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
			if i == 0 && !letter {
				return false
			}
			if !letter && c != '_' && (c < '0' || c > '9') {
				return false
			}
		}
		return true
	})
	v := &requestValidator{validate: validate, translator: translator}
	v.registerTranslation(featureKeyTag, featureKeyText, false)
	v.registerTranslation(requiredTag, requiredFieldText, true)
	return v
}

func (v *requestValidator) registerTranslation(tag, text string, override bool) {
	_ = v.validate.RegisterTranslation(
		tag, v.translator,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Struct returns nil or an error whose text is the first translated failure.
func (v *requestValidator) Struct(dst any) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return errors.New(verrs[0].Translate(v.translator))
	}
	return err
}

// decodeJSON reads a single JSON object, rejecting unknown fields and
// trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return jsonError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return jsonError(err)
	}
	return nil
}

func jsonError(err error) error {
	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return errors.New("request body is required")
	case errors.As(err, &maxErr):
		return errBodyTooLarge
	case errors.As(err, &typeErr):
		return fmt.Errorf("field %s has the wrong type", typeErr.Field)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return fmt.Errorf("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return errors.New("malformed JSON body")
	}
}

// bind decodes and validates a JSON or form body, answering 400 on failure.
func (a *API) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	var err error
	if isMultipart(r) {
		err = decodeForm(r, dst)
	} else {
		err = decodeJSON(w, r, dst)
	}
	if err == nil {
		err = a.validator.Struct(dst)
	}
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large.")
			return false
		}
		writeError(w, r, http.StatusBadRequest, sentence(err.Error()))
		return false
	}
	return true
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mt, "multipart/")
}

// decodeForm maps multipart values onto dst through its JSON tags. Every value
// arrives as a string, so dst fields use the flex types below for non-string
// data. Blank values count as absent.
func decodeForm(r *http.Request, dst any) error {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return errors.New("malformed multipart body")
	}
	values := make(map[string]json.RawMessage, len(r.MultipartForm.Value))
	for k, vs := range r.MultipartForm.Value {
		if len(vs) == 0 {
			continue
		}
		raw := strings.TrimSpace(vs[0])
		if raw == "" {
			continue
		}
		if k == "features" && strings.HasPrefix(raw, "{") {
			values[k] = json.RawMessage(raw)
			continue
		}
		data, _ := json.Marshal(vs[0])
		values[k] = data
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(dst); err != nil {
		return jsonError(err)
	}
	return nil
}

// formFile returns the named upload, or nil when the field is absent. The
// caller closes the returned file.
func formFile(r *http.Request, field string) (*blob.File, io.Closer, error) {
	if !isMultipart(r) {
		return nil, nil, nil
	}
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, nil, errors.New("malformed multipart body")
		}
	}
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &blob.File{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Reader:      f,
	}, f, nil
}

// flexBool accepts JSON booleans and their form spellings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch strings.ToLower(s) {
	case "true", "1", "on", "yes":
		*b = true
	case "false", "0", "off", "no", "":
		*b = false
	default:
		return &json.UnmarshalTypeError{Value: s, Type: reflect.TypeOf(true)}
	}
	return nil
}

// flexDate accepts RFC 3339 timestamps and plain dates. An empty string
// decodes to the zero time.
type flexDate struct{ time.Time }

func (d *flexDate) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return &json.UnmarshalTypeError{Value: string(data), Type: reflect.TypeOf("")}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return &json.UnmarshalTypeError{Value: s, Type: reflect.TypeOf(time.Time{})}
}

func (d *flexDate) ptr() *time.Time {
	if d == nil || d.Time.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func (b *flexBool) ptr() *bool {
	if b == nil {
		return nil
	}
	v := bool(*b)
	return &v
}
