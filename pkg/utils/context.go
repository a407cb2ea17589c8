package utils

type ContextKey string

const (
	ActorKey ContextKey = "actor"

	SubjectClaim = "sub"
	RoleClaim    = "role"
)
