package runner

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	v1 "github.com/archconv/archconv/apis/v1"
	"github.com/archconv/archconv/internal/engine"
)

// Variables are the values ${NAME} references in a job file may resolve to.
type Variables map[string]string

// BuildVariables returns the built-in job variables plus the allowed environment
// variables. Every allowed variable must be set.
func BuildVariables(job v1.ConvertJob, allowedEnv []string) (Variables, error) {
	date := time.Now().UTC()
	variables := Variables{
		"JOB_NAME":         job.Metadata.Name,
		"JOB_DATE_ISO8601": date.Format(engine.ISO8601Basic),
		"JOB_DATE_RFC3339": date.Format(time.RFC3339),
	}

	var errs error
	for _, name := range allowedEnv {
		val, ok := os.LookupEnv(name)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("environment variable %q is not set", name))
			continue
		}
		variables[name] = val
	}
	if errs != nil {
		return nil, errs
	}
	return variables, nil
}

// With returns a copy of v with key set.
func (v Variables) With(key, value string) Variables {
	out := make(Variables, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	out[key] = value
	return out
}

// Expand replaces ${VAR} references in value. Unknown variables are an error.
func Expand(value string, variables Variables) (string, error) {
	var errs error
	result := os.Expand(value, func(key string) string {
		if val, ok := variables[key]; ok {
			return val
		}
		errs = errors.Join(errs, fmt.Errorf("variable %q is not in the allowed list", key))
		return ""
	})
	if errs != nil {
		return "", errs
	}
	return result, nil
}

// ExpandJob expands the job-wide settings and then every conversion. Conversions see
// two extra variables: SOURCE_STEM, the source base name without its archive extension,
// and CONVERSION_ID.
func ExpandJob(job *v1.ConvertJob, variables Variables) error {
	conversions := job.Spec.Conversions
	job.Spec.Conversions = nil
	err := ExpandTemplates(job, variables)
	job.Spec.Conversions = conversions
	if err != nil {
		return err
	}

	for i := range job.Spec.Conversions {
		if err := ExpandConversion(&job.Spec.Conversions[i], variables); err != nil {
			return fmt.Errorf("conversion %q: %w", job.Spec.Conversions[i].ID, err)
		}
	}
	return nil
}

// ExpandConversion expands c.Source first, then the remaining template fields.
func ExpandConversion(c *v1.Conversion, variables Variables) error {
	source, err := Expand(c.Source, variables)
	if err != nil {
		return err
	}
	c.Source = source

	loc, err := engine.ParseLocation(source)
	if err != nil {
		return err
	}
	scoped := variables.
		With("SOURCE_STEM", engine.TrimExtension(loc.Base())).
		With("CONVERSION_ID", c.ID)
	return ExpandTemplates(c, scoped)
}

// ExpandTemplates expands, in place, every string field tagged `template` reachable
// from in, including *string and []string fields. `template:"-"` opts a field out.
// map[string]string values are always expanded. Nested structs, pointers and slices are
// walked whether tagged or not.
func ExpandTemplates[T any](in *T, variables Variables) error {
	if in == nil {
		return nil
	}
	v := reflect.ValueOf(in).Elem()
	if v.Kind() != reflect.Struct && v.Kind() != reflect.Slice {
		return fmt.Errorf("ExpandTemplates expects *struct or *[]struct; got *%s", v.Type())
	}
	return expandValue(v, false, variables)
}

func expandValue(v reflect.Value, tagged bool, variables Variables) error {
	switch v.Kind() {
	case reflect.String:
		if !tagged {
			return nil
		}
		expanded, err := Expand(v.String(), variables)
		if err != nil {
			return err
		}
		v.SetString(expanded)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Elem().Kind() == reflect.String {
			if !tagged {
				return nil
			}
			// Replace rather than mutate: the pointee may be shared.
			expanded, err := Expand(v.Elem().String(), variables)
			if err != nil {
				return err
			}
			ptr := reflect.New(v.Elem().Type())
			ptr.Elem().SetString(expanded)
			v.Set(ptr)
			return nil
		}
		return expandValue(v.Elem(), tagged, variables)

	case reflect.Slice:
		var errs error
		for i := range v.Len() {
			errs = errors.Join(errs, expandValue(v.Index(i), tagged, variables))
		}
		return errs

	case reflect.Map:
		typ := v.Type()
		if v.IsNil() || typ.Key().Kind() != reflect.String || typ.Elem().Kind() != reflect.String {
			return nil
		}
		expanded := reflect.MakeMapWithSize(typ, v.Len())
		var errs error
		iter := v.MapRange()
		for iter.Next() {
			val, err := Expand(iter.Value().String(), variables)
			if err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			expanded.SetMapIndex(iter.Key(), reflect.ValueOf(val).Convert(typ.Elem()))
		}
		if errs != nil {
			return errs
		}
		v.Set(expanded)

	case reflect.Struct:
		typ := v.Type()
		var errs error
		for i := range typ.NumField() {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			tag, ok := field.Tag.Lookup("template")
			errs = errors.Join(errs, expandValue(v.Field(i), ok && tag != "-", variables))
		}
		return errs
	}
	return nil
}
