package behavior

import "errors"

var (
	ErrUnknownBehavior     = errors.New("unknown behavior")
	ErrDuplicateBehavior   = errors.New("behavior already registered")
	ErrUnnamedBehavior     = errors.New("behavior name is required for non-local placement")
	ErrBadFormat           = errors.New("unsupported behavior format")
	ErrUnknownMarshaller   = errors.New("unknown marshaller")
	ErrDuplicateMarshaller = errors.New("marshaller already registered")
)
