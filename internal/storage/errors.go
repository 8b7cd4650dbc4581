package storage

import "errors"

// ErrAlreadyExists is returned when creating an entity whose ID is taken.
var ErrAlreadyExists = errors.New("entity already exists")
