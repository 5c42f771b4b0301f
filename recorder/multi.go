package recorder

import "errors"

// MultiSink writes each record to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(r *TurnRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
