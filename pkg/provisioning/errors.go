package provisioning

type provisioningError struct{ msg string }

func (e *provisioningError) Error() string { return e.msg }

var (
	// ErrStorageUnavailable means the credential store could not initialize.
	// Begin degrades to the fallback network.
	ErrStorageUnavailable = &provisioningError{"credential storage unavailable"}
	// ErrStorageWriteFailed is returned when saving or clearing a credential
	// failed. The state is left unchanged.
	ErrStorageWriteFailed = &provisioningError{"credential storage write failed"}
	// ErrConnectionTimeout is recorded when a join attempt ran out of time.
	ErrConnectionTimeout = &provisioningError{"connection timed out"}
	// ErrCredentialMissing means there is no usable saved credential.
	ErrCredentialMissing = &provisioningError{"no saved credential"}
	// ErrInvalidCredential is returned for a network id or secret outside
	// the allowed bounds.
	ErrInvalidCredential = &provisioningError{"invalid credential"}
	// ErrAlreadyStarted is returned when Begin is called more than once.
	ErrAlreadyStarted = &provisioningError{"provisioning already started"}
)
