package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/dshills/ringbus/internal/ring"
	"github.com/dshills/ringbus/internal/route"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report keys as they appear in the file.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks c and returns every problem found, joined. Each problem is
// a *ValidationError, except a buffer size that is not a power of two, which
// is a *ring.ConfigurationError.
func (c *Config) Validate() error {
	var errs []error

	if err := validatorInstance().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, &ValidationError{
				Path:    keyPath(fe.Namespace()),
				Message: describe(fe),
				Value:   fe.Value(),
			})
		}
	}

	if n := c.Ring.BufferSize; n > 0 && n&(n-1) != 0 {
		errs = append(errs, &ring.ConfigurationError{Field: "ring.buffer_size", Value: n, Reason: "must be a power of two"})
	}
	if c.Ring.WaitStrategy == ring.WaitTimeoutBlocking && c.Ring.WaitTimeout <= 0 {
		errs = append(errs, &ValidationError{Path: "ring.wait_timeout", Message: "required by timeout-blocking", Value: c.Ring.WaitTimeout})
	}

	for i, e := range c.Routes {
		path := fmt.Sprintf("routes[%d]", i)
		if err := route.ValidatePattern(e.Pattern); err != nil {
			errs = append(errs, &ValidationError{Path: path + ".pattern", Message: err.Error(), Value: e.Pattern})
		}
		if e.HandlerID == "" {
			errs = append(errs, &ValidationError{Path: path + ".handler", Message: "required", Value: e.HandlerID})
		}
	}
	if _, err := route.ParseDefinitions(c.RouteDefinitions); err != nil {
		errs = append(errs, &ValidationError{Path: "route_definitions", Message: err.Error(), Value: c.RouteDefinitions})
	}

	return errors.Join(errs...)
}

// keyPath turns a validator namespace such as "Config.workers.count" into a
// config key.
func keyPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "hostname_port":
		return "must be host:port"
	default:
		return "failed " + fe.Tag()
	}
}
