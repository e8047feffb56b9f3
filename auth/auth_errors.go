package auth

import "errors"

var ErrCoordinatorClosed = errors.New("auth coordinator closed")
