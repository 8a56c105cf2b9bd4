package handler

const (
	errInvalidRequest    = "invalid request"
	errSchedulerNotFound = "scheduler not found"
	errInternalServer    = "internal server error"
)
