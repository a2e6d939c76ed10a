package trew

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

// PropertyHolder serves the injection points tagged `property=path`. Bind
// one to make properties injectable:
//
//	props, err := trew.LoadYAMLProperties(file)
//	trew.Bind[trew.PropertyHolder](b).ToInstance(props)
//
//	type Server struct {
//	    Addr    string        `inject:"property=server.addr"`
//	    Timeout time.Duration `inject:"property=server.timeout,optional"`
//	}
type PropertyHolder interface {
	Property(path string) (any, bool)
}

var propertyHolderKey = key.For[PropertyHolder]()

// Properties is a PropertyHolder over nested maps. A path is first looked
// up as a flat key, then walked segment by segment on the dots.
type Properties map[string]any

// Property implements PropertyHolder.
func (p Properties) Property(path string) (any, bool) {
	if v, ok := p[path]; ok {
		return v, true
	}

	var current any = map[string]any(p)
	for _, segment := range strings.Split(path, ".") {
		switch m := current.(type) {
		case map[string]any:
			v, ok := m[segment]
			if !ok {
				return nil, false
			}
			current = v
		case Properties:
			v, ok := m[segment]
			if !ok {
				return nil, false
			}
			current = v
		case map[any]any:
			v, ok := m[segment]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

// ParseYAMLProperties parses a YAML document into Properties.
func ParseYAMLProperties(data []byte) (Properties, error) {
	props := Properties{}
	if err := yaml.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("trew: failed to parse YAML properties: %w", err)
	}
	return props, nil
}

// LoadYAMLProperties reads one YAML document from r. An empty input gives
// empty Properties.
func LoadYAMLProperties(r io.Reader) (Properties, error) {
	props := Properties{}
	if err := yaml.NewDecoder(r).Decode(&props); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trew: failed to parse YAML properties: %w", err)
	}
	return props, nil
}

// LoadEnvProperties reads dotenv files, .env when none is given, into flat
// Properties. The process environment is left untouched.
func LoadEnvProperties(files ...string) (Properties, error) {
	env, err := godotenv.Read(files...)
	if err != nil {
		return nil, fmt.Errorf("trew: failed to read env properties: %w", err)
	}
	props := make(Properties, len(env))
	for k, v := range env {
		props[k] = v
	}
	return props, nil
}

// property serves a key qualified with a property path.
func (inj *Injector) property(s *ProvisionStack, k key.Key, path string) any {
	inj.bindJustInTime(s, propertyHolderKey)
	if !inj.isBound(propertyHolderKey) {
		s.attach(&KeyError{Key: k, Op: "read", Err: ErrNoPropertyHolder})
		return nil
	}

	holder, ok := inj.getInstance(s, propertyHolderKey, true).(PropertyHolder)
	if !ok {
		s.attach(&KeyError{Key: k, Op: "read", Err: ErrNoPropertyHolder})
		return nil
	}

	raw, found := holder.Property(path)
	if !found {
		s.attach(&KeyError{Key: k, Op: "read", Err: fmt.Errorf("%w: %q", ErrPropertyNotFound, path)})
		return nil
	}

	v, err := convertProperty(raw, k.Reflect())
	if err != nil {
		s.attach(&KeyError{Key: k, Op: "convert property " + path + " for", Err: err})
		return nil
	}
	return v
}

// convertProperty converts a raw property value to rt. Strings and bools
// are converted directly; everything else goes through YAML decoding.
func convertProperty(v any, rt reflect.Type) (any, error) {
	if rt == nil {
		return nil, errors.New("no Go type is known for the key")
	}
	if v == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(rt) {
		return v, nil
	}
	if rt.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(v)).Convert(rt).Interface(), nil
	}
	if isNumeric(rv.Kind()) && isNumeric(rt.Kind()) {
		return rv.Convert(rt).Interface(), nil
	}

	out := reflect.New(rt)
	if s, ok := v.(string); ok {
		if rt.Kind() == reflect.Bool {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a bool", ErrTypeMismatch, s)
			}
			return reflect.ValueOf(b).Convert(rt).Interface(), nil
		}
		if err := yaml.Unmarshal([]byte(s), out.Interface()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		return out.Elem().Interface(), nil
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if err := yaml.Unmarshal(data, out.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return out.Elem().Interface(), nil
}

func isNumeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
