package browser

import "errors"

var (
	ErrSupervisorShutdown = errors.New("browser supervisor is shutting down")
	ErrLaunchFailed       = errors.New("browser launch failed")
	ErrNavigateFailed     = errors.New("navigation failed")
	ErrExtractFailed      = errors.New("page inspection failed")
	ErrLoginFailed        = errors.New("login flow failed")
	ErrWaitTimeout        = errors.New("wait timeout exceeded")
)
