package errors

// The Kinds below mirror the error taxonomy surfaced across the core API.
// Components construct errors by calling WithCause/WithMessage on these
// base values rather than by inventing ad hoc Kind strings.
const (
	KindInvalidConfig            Kind = "invalid_config"
	KindUnresolvedDependency     Kind = "unresolved_dependency"
	KindCyclicDependency         Kind = "cyclic_dependency"
	KindStoreUnavailable         Kind = "store_unavailable"
	KindStoreNotFound            Kind = "store_not_found"
	KindStoreConstraintViolation Kind = "store_constraint_violation"
	KindExternalServiceAPIError  Kind = "external_service_api_error"
	KindExternalServiceTimeout   Kind = "external_service_timeout"
	KindInvalidArgument          Kind = "invalid_argument"
	KindQueryDegraded            Kind = "query_degraded"
	KindSessionAlreadyExists     Kind = "session_already_exists"
	KindSessionNotFound          Kind = "session_not_found"
	KindGroupHasSessions         Kind = "group_has_sessions"
	KindInternal                 Kind = "internal"
)

var (
	ErrInvalidConfig            = Register(&Error{Kind: KindInvalidConfig, Message: "invalid configuration"})
	ErrUnresolvedDependency     = Register(&Error{Kind: KindUnresolvedDependency, Message: "unresolved resource dependency"})
	ErrCyclicDependency         = Register(&Error{Kind: KindCyclicDependency, Message: "cyclic dependency detected in resource definitions"})
	ErrStoreUnavailable         = Register(&Error{Kind: KindStoreUnavailable, Message: "store unavailable"})
	ErrStoreNotFound            = Register(&Error{Kind: KindStoreNotFound, Message: "store entity not found"})
	ErrStoreConstraintViolation = Register(&Error{Kind: KindStoreConstraintViolation, Message: "store constraint violation"})
	ErrExternalServiceAPIError  = Register(&Error{Kind: KindExternalServiceAPIError, Message: "external service returned an error"})
	ErrExternalServiceTimeout   = Register(&Error{Kind: KindExternalServiceTimeout, Message: "external service call timed out"})
	ErrInvalidArgument          = Register(&Error{Kind: KindInvalidArgument, Message: "invalid argument"})
	ErrQueryDegraded            = Register(&Error{Kind: KindQueryDegraded, Message: "query answered with degraded fidelity"})
	ErrSessionAlreadyExists     = Register(&Error{Kind: KindSessionAlreadyExists, Message: "session already exists"})
	ErrSessionNotFound          = Register(&Error{Kind: KindSessionNotFound, Message: "session not found"})
	ErrGroupHasSessions         = Register(&Error{Kind: KindGroupHasSessions, Message: "group has live sessions"})
	ErrInternal                 = Register(&Error{Kind: KindInternal, Message: "internal error"})
)
