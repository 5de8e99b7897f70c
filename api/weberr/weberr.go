package weberr

// Opt decorates an error with transport metadata.
type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

func WithResponse(body any, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

func WithFields(fields map[string]any) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}

// WithField is WithFields for a single key.
func WithField(key string, value any) Opt {
	return WithFields(map[string]any{key: value})
}
