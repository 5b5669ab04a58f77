package exthost

import "errors"

var (
	// ErrNoManifest indicates a directory without extension.json or extension.yaml.
	ErrNoManifest = errors.New("exthost: no extension manifest")

	// ErrInvalidManifest wraps every manifest validation failure.
	ErrInvalidManifest = errors.New("exthost: invalid manifest")

	// ErrDuplicateExtension indicates two extensions with the same id.
	ErrDuplicateExtension = errors.New("exthost: duplicate extension")

	// ErrClosed is returned after an extension has been unloaded.
	ErrClosed = errors.New("exthost: extension closed")

	// ErrNoHandler indicates no extension handles an inbound method.
	ErrNoHandler = errors.New("exthost: no handler")
)
